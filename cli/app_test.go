package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run(append([]string{"swervesim"}, args...))
	return out.String(), errOut.String(), err
}

func TestCheckConfig(t *testing.T) {
	out, _, err := runApp(t, "check-config")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "max_speed_mps: 3")
	test.That(t, out, test.ShouldContainSubstring, "name: limelight")

	p := filepath.Join(t.TempDir(), "robot.yaml")
	test.That(t, os.WriteFile(p, []byte("drivetrain:\n  max_speed_mps: 4.25\n"), 0o600), test.ShouldBeNil)
	out, _, err = runApp(t, "--config", p, "check-config")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "max_speed_mps: 4.25")

	test.That(t, os.WriteFile(p, []byte("loop:\n  period_ms: 1\n"), 0o600), test.ShouldBeNil)
	_, _, err = runApp(t, "-c", p, "check-config")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "loop")
}

func TestRun(t *testing.T) {
	plotFile := filepath.Join(t.TempDir(), "path.png")
	out, logs, err := runApp(t, "run", "--duration", "300ms", "--print-every", "5", "--slip", "0.1", "--xlock",
		"--plot", plotFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "cycle     5")
	test.That(t, out, test.ShouldContainSubstring, "estimate")
	test.That(t, out, test.ShouldContainSubstring, "predictions")
	test.That(t, out, test.ShouldContainSubstring, "front_left")
	test.That(t, logs, test.ShouldContainSubstring, "running loop every 20ms")

	info, err := os.Stat(plotFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)
}
