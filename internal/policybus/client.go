// Package policybus implements the PolicyBus transport described in
// spec.md §6 over D-Bus (grounded on original_source/src/dbusif.c): watch
// for the policy decision point's appearance, register as its audio
// action handler, decode audio_actions signals into Dispatcher actions,
// and signal back a per-transaction status.
package policybus

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/godbus/dbus/v5"

	"github.com/nokia-audio/alsapolicyd/internal/dispatcher"
)

const (
	adminInterface   = "org.freedesktop.DBus"
	adminPath        = "/org/freedesktop/DBus"
	nameOwnerChanged = "NameOwnerChanged"

	defaultInterface   = "com.nokia.policy"
	defaultMyPath      = "/com/nokia/policy/enforce/alsa"
	defaultPDPath      = "/com/nokia/policy"
	defaultPDName      = "org.freedesktop.ohm"
	defaultProcessName = "alsapolicyd"

	decisionPathSuffix = "decision"
	actionsMember      = "audio_actions"
	statusMember       = "status"
)

const (
	audioRouteGroup = "com.nokia.policy.audio_route"
	contextGroup    = "com.nokia.policy.context"
)

// Handler processes one decoded action and reports whether it succeeded;
// the aggregate across every action in a signal determines the status
// reported back to the decision point.
type Handler func(dispatcher.Action) bool

// Options overrides the D-Bus names this client uses; the zero value of
// each field falls back to the source's compiled-in defaults.
type Options struct {
	Interface   string
	MyPath      string
	PDPath      string
	PDName      string
	ProcessName string
}

func (o Options) withDefaults() Options {
	if o.Interface == "" {
		o.Interface = defaultInterface
	}

	if o.MyPath == "" {
		o.MyPath = defaultMyPath
	}

	if o.PDPath == "" {
		o.PDPath = defaultPDPath
	}

	if o.PDName == "" {
		o.PDName = defaultPDName
	}

	if o.ProcessName == "" {
		o.ProcessName = defaultProcessName
	}

	return o
}

// Client is a PolicyBus implementation over a system D-Bus connection.
type Client struct {
	conn    *dbus.Conn
	opts    Options
	handler Handler
	log     *log.Logger

	registered bool
	admRule    string
	actRule    string
}

// NewClient returns a Client that reports decoded actions to handler.
func NewClient(conn *dbus.Conn, opts Options, handler Handler, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}

	opts = opts.withDefaults()

	return &Client{
		conn:    conn,
		opts:    opts,
		handler: handler,
		log:     logger.With("component", "policybus"),
		admRule: fmt.Sprintf(
			"type='signal',sender='%s',path='%s',interface='%s',member='%s',arg0='%s'",
			adminInterface, adminPath, adminInterface, nameOwnerChanged, opts.PDName,
		),
		actRule: fmt.Sprintf(
			"type='signal',interface='%s',member='%s',path='%s/%s'",
			opts.Interface, actionsMember, opts.PDPath, decisionPathSuffix,
		),
	}
}

// Run subscribes to the admin and action signals, attempts initial
// registration, and processes signals until ctx is done. The event loop
// is single-threaded by design (spec.md §5): Run owns the only goroutine
// that touches Client state.
func (c *Client) Run(ctx context.Context) error {
	busObj := c.conn.BusObject()

	if call := busObj.Call("org.freedesktop.DBus.AddMatch", 0, c.admRule); call.Err != nil {
		return &TransportError{Reason: fmt.Sprintf("subscribing to name-owner signals: %s", call.Err)}
	}

	if call := busObj.Call("org.freedesktop.DBus.AddMatch", 0, c.actRule); call.Err != nil {
		return &TransportError{Reason: fmt.Sprintf("subscribing to %s signal: %s", actionsMember, call.Err)}
	}

	defer busObj.Call("org.freedesktop.DBus.RemoveMatch", 0, c.admRule) //nolint:errcheck
	defer busObj.Call("org.freedesktop.DBus.RemoveMatch", 0, c.actRule) //nolint:errcheck

	signals := make(chan *dbus.Signal, 16)
	c.conn.Signal(signals)
	defer c.conn.RemoveSignal(signals)

	if err := c.register(); err != nil {
		c.log.Error(err.Error(), "kind", "TransportError")
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case sig, ok := <-signals:
			if !ok {
				return nil
			}

			c.handleSignal(sig)
		}
	}
}

func (c *Client) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case adminInterface + "." + nameOwnerChanged:
		c.handleAdmin(sig)
	case c.opts.Interface + "." + actionsMember:
		c.handleActions(sig)
	}
}

// handleAdmin reacts to the decision point's name appearing or
// disappearing on the bus, re-registering on reappearance.
func (c *Client) handleAdmin(sig *dbus.Signal) {
	if len(sig.Body) != 3 {
		return
	}

	name, _ := sig.Body[0].(string)
	before, _ := sig.Body[1].(string)
	after, _ := sig.Body[2].(string)

	if name != c.opts.PDName {
		return
	}

	if after != "" {
		c.log.Info("policy decision point is up")

		if !c.registered {
			if err := c.register(); err != nil {
				c.log.Error(err.Error(), "kind", "TransportError")
			}
		}

		return
	}

	if before != "" {
		c.log.Info("policy decision point is gone")

		c.registered = false
	}
}

// register issues the "register" method call naming audio_actions as the
// signal this process handles.
func (c *Client) register() error {
	c.log.Info("registering to policy daemon", "pdname", c.opts.PDName, "pdpath", c.opts.PDPath)

	obj := c.conn.Object(c.opts.PDName, dbus.ObjectPath(c.opts.PDPath))
	call := obj.Call(c.opts.Interface+".register", 0, c.opts.ProcessName, []string{actionsMember})

	if call.Err != nil {
		c.registered = false

		return &TransportError{Reason: fmt.Sprintf("registration to policy daemon failed: %s", call.Err)}
	}

	c.log.Info("registration to policy daemon succeeded")
	c.registered = true

	return nil
}

// handleActions decodes one audio_actions signal into zero or more
// Dispatcher actions, runs each through handler, and reports the
// aggregate status back to the decision point.
func (c *Client) handleActions(sig *dbus.Signal) {
	if len(sig.Body) != 2 {
		c.log.Error("received malformed audio_actions message", "kind", "TransportError")
		c.emitStatus(0, false)

		return
	}

	txid, ok := sig.Body[0].(uint32)
	if !ok {
		c.log.Error("audio_actions message has no transaction id", "kind", "TransportError")
		c.emitStatus(0, false)

		return
	}

	groups, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	success := ok

	if !ok {
		c.log.Error("audio_actions message has an unrecognized action-group shape", "kind", "TransportError")
	} else {
		for name, fields := range groups {
			action, err := decodeAction(name, fields)
			if err != nil {
				c.log.Error(err.Error(), "kind", "TransportError")

				success = false

				continue
			}

			if !c.handler(action) {
				success = false
			}
		}
	}

	c.emitStatus(txid, success)
}

func decodeAction(name string, fields map[string]dbus.Variant) (dispatcher.Action, error) {
	switch name {
	case audioRouteGroup:
		typ, _ := fields["type"].Value().(string)
		device, _ := fields["device"].Value().(string)

		switch typ {
		case "sink":
			return dispatcher.RouteSinkAction{Device: device}, nil
		case "source":
			return dispatcher.RouteSourceAction{Device: device}, nil
		default:
			return nil, fmt.Errorf("invalid audio route type %q", typ)
		}

	case contextGroup:
		variable, _ := fields["variable"].Value().(string)
		value, _ := fields["value"].Value().(string)

		return dispatcher.ContextSetAction{Variable: variable, Value: value}, nil

	default:
		return nil, fmt.Errorf("unknown action group %q", name)
	}
}

// emitStatus signals (txid, status) back on the decision point's path.
// Per spec.md §6, no signal is sent when txid is 0.
func (c *Client) emitStatus(txid uint32, success bool) {
	if txid == 0 {
		c.log.Info("not sending status signal: transaction id is 0")

		return
	}

	status := uint32(0)
	if success {
		status = 1
	}

	path := dbus.ObjectPath(c.opts.PDPath + "/" + decisionPathSuffix)

	if err := c.conn.Emit(path, c.opts.Interface+"."+statusMember, txid, status); err != nil {
		c.log.Error((&TransportError{Reason: err.Error()}).Error(), "kind", "TransportError")
	}
}
