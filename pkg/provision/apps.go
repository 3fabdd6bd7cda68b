package provision

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/openfroyo/bootstrap/pkg/config"
	"github.com/openfroyo/bootstrap/pkg/gateway"
)

func (e *Env) apps(ctx context.Context) error {
	logger := e.logger(PhaseApps)
	ap := e.profile().Apps

	for _, cask := range ap.Casks {
		if err := e.ensure(ctx, logger, &brewPackage{env: e, name: cask, cask: true}); err != nil {
			return fmt.Errorf("failed to install cask %s: %w", cask, err)
		}
	}
	for _, app := range ap.DMGs {
		if err := e.ensure(ctx, logger, &dmgApp{env: e, app: app}); err != nil {
			return fmt.Errorf("failed to install %s: %w", app.Name, err)
		}
	}
	return nil
}

func (e *Env) verifyApps(ctx context.Context) bool {
	ap := e.profile().Apps
	for _, app := range ap.DMGs {
		if !e.Gateway.Exists(filepath.Join(ap.ApplicationsDir, app.App)) {
			return false
		}
	}
	for _, cask := range ap.Casks {
		if !(&brewPackage{env: e, name: cask, cask: true}).Present(ctx) {
			return false
		}
	}
	return true
}

// MountPoint returns where the image for app is attached. The name matches
// the finalizer's mount pattern so an interrupted install is detached.
func MountPoint(settings *config.Settings, app string) string {
	prefix := strings.TrimRight(settings.MountPattern, "*")
	return filepath.Join(settings.VolumesDir, prefix+app)
}

// dmgApp is an application bundle copied out of a downloaded disk image.
type dmgApp struct {
	env *Env
	app config.DMGApp
}

func (d *dmgApp) Name() string { return d.app.Name }

func (d *dmgApp) target() string {
	return filepath.Join(d.env.profile().Apps.ApplicationsDir, d.app.App)
}

func (d *dmgApp) Present(context.Context) bool {
	return d.env.Gateway.Exists(d.target())
}

func (d *dmgApp) Install(ctx context.Context) error {
	gw := d.env.Gateway

	image, err := d.env.download(ctx, d.app.URL, d.app.Name+".dmg")
	if err != nil {
		return err
	}

	mount := MountPoint(d.env.settings(), d.app.Name)
	attach := gateway.Command("hdiutil", "attach", image, "-nobrowse", "-quiet", "-mountpoint", mount).
		Describe("mount " + d.app.Name)
	if err := gw.Execute(ctx, attach); err != nil {
		return err
	}

	copyErr := gw.Execute(ctx, gateway.Command("ditto", filepath.Join(mount, d.app.App), d.target()).
		Describe("copy "+d.app.App))

	detachErr := gw.Execute(ctx, gateway.Command("hdiutil", "detach", mount, "-quiet").Describe("unmount "+d.app.Name))
	if copyErr != nil {
		return copyErr
	}
	if detachErr != nil {
		d.env.logger(PhaseApps).WithError(detachErr).Warnf("Failed to detach %s", mount)
	}

	return d.env.Waiter.WaitForPath(ctx, d.target())
}
