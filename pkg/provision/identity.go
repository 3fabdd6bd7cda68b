package provision

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"path/filepath"

	"github.com/openfroyo/bootstrap/pkg/gateway"
	sshpkg "golang.org/x/crypto/ssh"
)

func (e *Env) identity(ctx context.Context) error {
	logger := e.logger(PhaseIdentity)
	id := e.profile().Identity

	if id.Name != "" || id.Email != "" {
		if _, err := e.Backup.Backup(ctx, e.home(".gitconfig")); err != nil {
			return err
		}
	}
	for _, kv := range [][2]string{{"user.name", id.Name}, {"user.email", id.Email}} {
		if kv[1] == "" {
			continue
		}
		if err := e.Gateway.Execute(ctx, gateway.Command("git", "config", "--global", kv[0], kv[1])); err != nil {
			return fmt.Errorf("failed to set git %s: %w", kv[0], err)
		}
	}

	keyPath := e.home(id.KeyPath)
	created, pub, err := e.ensureKey(ctx, keyPath, id.KeyComment)
	if err != nil {
		return err
	}

	if err := e.configureSSH(ctx, keyPath); err != nil {
		return err
	}

	if !created {
		logger.Infof("ssh key %s already exists", keyPath)
	}
	// Offered on every run of the phase, so an upload abandoned by a failed
	// or interrupted run is offered again on resume.
	if id.SkipUpload || id.UploadURL == "" {
		logger.Infof("Public key: %s", bytes.TrimSpace(pub))
		return nil
	}
	return e.uploadKey(ctx, id.UploadURL, pub)
}

func (e *Env) verifyIdentity(context.Context) bool {
	return e.Gateway.Exists(e.home(e.profile().Identity.KeyPath))
}

// ensureKey generates an ed25519 key pair at keyPath unless one exists. It
// reports whether a key was created and returns the authorized_keys line,
// read back from keyPath.pub for an existing key.
func (e *Env) ensureKey(ctx context.Context, keyPath, comment string) (bool, []byte, error) {
	if e.Gateway.Exists(keyPath) {
		pub, err := e.readOptional(keyPath + ".pub")
		return false, []byte(pub), err
	}

	privPEM, pubLine, err := generateKey(comment)
	if err != nil {
		return false, nil, err
	}

	if err := e.Gateway.MkdirAll(ctx, filepath.Dir(keyPath), 0o700); err != nil {
		return false, nil, err
	}
	if err := e.Gateway.WriteFile(ctx, keyPath, privPEM, 0o600); err != nil {
		return false, nil, fmt.Errorf("failed to write private key: %w", err)
	}
	if err := e.Gateway.WriteFile(ctx, keyPath+".pub", pubLine, 0o644); err != nil {
		return false, nil, fmt.Errorf("failed to write public key: %w", err)
	}
	return true, pubLine, nil
}

// generateKey returns an OpenSSH private key PEM and its public key in
// authorized_keys format.
func generateKey(comment string) ([]byte, []byte, error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate keypair: %w", err)
	}

	block, err := sshpkg.MarshalPrivateKey(privKey, comment)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	sshPubKey, err := sshpkg.NewPublicKey(pubKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create SSH public key: %w", err)
	}
	pubLine := bytes.TrimSpace(sshpkg.MarshalAuthorizedKey(sshPubKey))
	if comment != "" {
		pubLine = append(pubLine, ' ')
		pubLine = append(pubLine, comment...)
	}
	pubLine = append(pubLine, '\n')

	return pem.EncodeToMemory(block), pubLine, nil
}

// configureSSH backs up ~/.ssh/config and writes a managed block that loads
// the key into the agent.
func (e *Env) configureSSH(ctx context.Context, keyPath string) error {
	cfgPath := e.home(".ssh/config")

	current, err := e.readOptional(cfgPath)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("Host *\n  IgnoreUnknown UseKeychain\n  AddKeysToAgent yes\n  UseKeychain yes\n  IdentityFile %s", keyPath)
	updated := upsertBlock(current, body)
	if updated == current {
		return nil
	}

	if _, err := e.Backup.Backup(ctx, cfgPath); err != nil {
		return err
	}
	if err := e.Gateway.MkdirAll(ctx, filepath.Dir(cfgPath), 0o700); err != nil {
		return err
	}
	return e.Gateway.WriteFile(ctx, cfgPath, []byte(updated), 0o600)
}

// uploadKey opens the credential upload page and waits for the operator.
func (e *Env) uploadKey(ctx context.Context, url string, pub []byte) error {
	logger := e.logger(PhaseIdentity)

	if err := e.Gateway.Execute(ctx, gateway.Command("open", url).Describe("open the key upload page")); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	logger.Infof("Add this public key at %s: %s", url, bytes.TrimSpace(pub))

	if e.Gateway.Preview() {
		logger.Info("[preview] wait for key upload confirmation")
		return nil
	}
	return e.Prompt.Wait(ctx, "Upload the public key, then continue")
}

// readOptional returns the content of path, or "" when it does not exist.
func (e *Env) readOptional(path string) (string, error) {
	if !e.Gateway.Exists(path) {
		return "", nil
	}
	data, err := e.Gateway.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
