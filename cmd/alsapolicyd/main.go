// Command alsapolicyd enforces audio routing and volume policy against a
// local mixer, driven by a policy decision point over D-Bus (spec.md
// §1, §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/godbus/dbus/v5"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/pkg/term/termios"

	"github.com/nokia-audio/alsapolicyd/internal/config"
	"github.com/nokia-audio/alsapolicyd/internal/daemon"
	"github.com/nokia-audio/alsapolicyd/internal/hwwatch"
	"github.com/nokia-audio/alsapolicyd/internal/mixerio"
	"github.com/nokia-audio/alsapolicyd/internal/model"
)

const (
	exitOK      = 0
	exitEINVAL  = int(unix.EINVAL)
	exitEIO     = int(unix.EIO)
	reexecEnv   = "ALSAPOLICYD_DAEMONIZED"
	defaultUser = ""
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := pflag.StringP("config", "c", "/etc/alsapolicyd.conf", "Configuration file name.")
	daemonize := pflag.BoolP("daemonize", "d", false, "Detach and run in the background.")
	runAsUser := pflag.StringP("user", "u", defaultUser, "Drop privileges to this user after startup.")
	realtime := pflag.IntP("realtime", "R", -1, "Realtime SCHED_RR priority, 0-99. Unset leaves the default scheduler.")
	list := pflag.BoolP("list", "l", false, "Enumerate hardware, print it, and exit without opening the policy transport.")
	interactive := pflag.BoolP("interactive", "i", false, "Read single-character commands (+ - V E H I) from stdin for manual testing.")
	debug := pflag.StringP("debug", "D", "", "Debug verbosity mask: any non-empty value raises the log level to debug.")
	help := pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - audio routing and volume policy enforcement daemon.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: alsapolicyd [options]\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()

		return exitOK
	}

	logger := log.New(os.Stderr)
	if *debug != "" {
		logger.SetLevel(log.DebugLevel)
	}

	if *realtime < -1 || *realtime > 99 {
		logger.Error("realtime priority out of range", "realtime", *realtime)
		pflag.Usage()

		return exitEINVAL
	}

	if *daemonize && os.Getenv(reexecEnv) == "" {
		return daemonizeSelf(logger)
	}

	m, err := config.Load(*configPath, logger)
	if err != nil {
		logger.Error(err.Error(), "kind", "ConfigError")

		return exitEINVAL
	}

	fake := mixerio.NewFake()
	hw := hwwatch.New(logger)

	if err := hw.SeedFake(fake); err != nil {
		logger.Warn("udev card enumeration failed, continuing with no hardware", "err", err)
	}

	if *list {
		return runList(m, fake, logger)
	}

	if *realtime >= 0 {
		if err := setRealtimePriority(*realtime); err != nil {
			logger.Error("can't set realtime priority", "realtime", *realtime, "err", err)

			return exitEIO
		}
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		logger.Error("can't connect to D-Bus system bus", "err", err)

		return exitEIO
	}
	defer conn.Close()

	if *runAsUser != "" {
		if err := dropPrivileges(*runAsUser); err != nil {
			logger.Error("can't drop privileges", "user", *runAsUser, "err", err)

			return exitEINVAL
		}
	}

	d := daemon.New(daemon.Config{
		Model:    m,
		Mixer:    fake,
		DBusConn: conn,
		HW:       hw,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *interactive {
		go runInteractive(ctx, logger)
	}

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon exited with error", "err", err)

		return exitEIO
	}

	return exitOK
}

// runList enumerates hardware through the same Daemon.Enumerate path the
// real daemon uses, prints what was found, and returns without ever
// opening the PolicyBus transport (spec.md §6: "list-and-exit").
func runList(m *model.Model, fake *mixerio.Fake, logger *log.Logger) int {
	d := daemon.New(daemon.Config{Model: m, Mixer: fake, Logger: logger})

	if err := d.Enumerate(context.Background()); err != nil {
		logger.Error("hardware enumeration failed", "err", err)

		return exitEIO
	}

	for _, card := range m.Cards {
		status := "unbound"
		if card.Bound() {
			status = fmt.Sprintf("card %d", card.Num)
		}

		fmt.Printf("%s/%s: %s\n", card.ID, card.Name, status)

		for _, elem := range card.Elements {
			elemStatus := "unbound"
			if elem.Bound() {
				elemStatus = fmt.Sprintf("numid %d", elem.NumID)
			}

			fmt.Printf("  %s/%s: %s\n", elem.IfName, elem.Name, elemStatus)
		}
	}

	return exitOK
}

// runInteractive reads single-character commands from stdin in raw mode
// for manual testing (spec.md §6). The original hardcodes card_num=0,
// numid=1 for volume +/-; that wiring is debug-only and is not
// reimplemented here (see DESIGN.md's Open Question decisions) — each
// command is logged, not acted on.
func runInteractive(ctx context.Context, logger *log.Logger) {
	fd := os.Stdin.Fd()

	var orig syscall.Termios
	if err := termios.Tcgetattr(fd, &orig); err != nil {
		logger.Error("can't read terminal attributes for interactive mode", "err", err)

		return
	}

	raw := orig
	termios.Cfmakeraw(&raw)

	if err := termios.Tcsetattr(fd, termios.TCSANOW, &raw); err != nil {
		logger.Error("can't set raw terminal mode for interactive mode", "err", err)

		return
	}

	defer termios.Tcsetattr(fd, termios.TCSANOW, &orig) //nolint:errcheck

	buf := make([]byte, 1)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return
		}

		switch buf[0] {
		case '+', '-', 'V', 'E', 'H', 'I':
			logger.Info("interactive command received", "command", string(buf[0]))
		case 'q', 3: // 'q' or Ctrl-C
			return
		}
	}
}

// daemonizeSelf re-execs the current binary with reexecEnv set and the
// controlling terminal detached, then exits the parent. Go has no
// fork(2); self-re-exec with a marker environment variable is the
// standard substitute for daemonizing a Go process.
func daemonizeSelf(logger *log.Logger) int {
	exe, err := os.Executable()
	if err != nil {
		logger.Error("can't locate executable to daemonize", "err", err)

		return exitEIO
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		logger.Error("can't open /dev/null for daemonized child", "err", err)

		return exitEIO
	}
	defer devNull.Close()

	attr := &os.ProcAttr{
		Env:   append(os.Environ(), reexecEnv+"=1"),
		Files: []*os.File{devNull, devNull, devNull},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	}

	proc, err := os.StartProcess(exe, os.Args, attr)
	if err != nil {
		logger.Error("can't start daemonized child", "err", err)

		return exitEIO
	}

	logger.Info("daemonized", "pid", proc.Pid)

	return exitOK
}

// setRealtimePriority requests SCHED_RR at the given priority for this
// process, matching spec.md §6's "realtime priority [0..99] (SCHED_RR)".
func setRealtimePriority(priority int) error {
	return unix.SchedSetscheduler(0, unix.SCHED_RR, &unix.SchedParam{Priority: int32(priority)})
}

// dropPrivileges switches the process's gid then uid to the named user's,
// in that order since dropping uid first would forfeit the permission to
// change gid.
func dropPrivileges(username string) error {
	u, err := user.Lookup(username)
	if err != nil {
		return err
	}

	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return err
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return err
	}

	if err := unix.Setgid(gid); err != nil {
		return err
	}

	return unix.Setuid(uid)
}
