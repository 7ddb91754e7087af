// Package catalog is the tool surface an agent calls: a fixed set of named
// operations, each with a parameter schema, returning a uniform Result.
//
// Arguments are decoded strictly and validated before any handler runs, so
// malformed calls never reach the platform. Every error is mapped onto a
// stable code; handler panics become INTERNAL. Mutating operations are
// recorded in the audit log.
//
//	c := catalog.New(catalog.Deps{Controller: ctrl, Templates: tmpls, Configlets: cfgs})
//	res := c.Call(ctx, "create_lab", json.RawMessage(`{"title":"demo"}`))
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/newtron-network/cmlkit/pkg/audit"
	"github.com/newtron-network/cmlkit/pkg/configlet"
	"github.com/newtron-network/cmlkit/pkg/console"
	"github.com/newtron-network/cmlkit/pkg/labgen"
	"github.com/newtron-network/cmlkit/pkg/lifecycle"
	"github.com/newtron-network/cmlkit/pkg/model"
	"github.com/newtron-network/cmlkit/pkg/util"
)

// Deps are the services operations delegate to. Console and Audit are
// optional; console_exec reports UNAVAILABLE without a console client and
// events go to the package-level audit logger when Audit is nil.
type Deps struct {
	Controller *lifecycle.Controller
	Templates  *labgen.Registry
	Configlets *configlet.Registry
	Console    *console.Client
	Audit      audit.Logger
	User       string
}

// Result is what every call returns.
type Result struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

type operation struct {
	def Definition
	run func(ctx context.Context, raw json.RawMessage) (any, error)
}

// Catalog dispatches named operations. It is safe for concurrent use.
type Catalog struct {
	deps  Deps
	ops   map[string]*operation
	order []string
}

// New builds the catalog over deps.
func New(deps Deps) *Catalog {
	if deps.User == "" {
		deps.User = "agent"
	}
	c := &Catalog{deps: deps, ops: make(map[string]*operation)}
	c.registerLabOps()
	c.registerNodeOps()
	c.registerLinkOps()
	c.registerTemplateOps()
	c.registerToolOps()
	return c
}

// register adds an operation whose arguments decode into A.
func register[A any](c *Catalog, name, description string, mutating bool, fn func(context.Context, A) (any, error)) {
	if _, dup := c.ops[name]; dup {
		panic("catalog: duplicate operation " + name)
	}
	def := Definition{
		Name:        name,
		Description: description,
		Parameters:  paramsOf(reflect.TypeOf((*A)(nil)).Elem()),
		Mutating:    mutating,
	}
	c.ops[name] = &operation{
		def: def,
		run: func(ctx context.Context, raw json.RawMessage) (any, error) {
			args, err := bind[A](raw)
			if err != nil {
				return nil, err
			}
			return fn(ctx, args)
		},
	}
	c.order = append(c.order, name)
}

// Definitions lists every operation in registration order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.ops[name].def)
	}
	return out
}

// Definition returns one operation's definition.
func (c *Catalog) Definition(name string) (Definition, bool) {
	op, ok := c.ops[name]
	if !ok {
		return Definition{}, false
	}
	return op.def, true
}

// Call runs an operation. It never panics and never returns a raw error.
func (c *Catalog) Call(ctx context.Context, name string, args json.RawMessage) (res Result) {
	op, ok := c.ops[name]
	if !ok {
		return Result{Error: &ErrorBody{
			Code:    CodeUnknownOperation,
			Message: fmt.Sprintf("unknown operation %q", name),
		}}
	}

	log := util.WithOperation(name)
	start := time.Now()
	var data any
	var err error

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Errorf("operation panicked\n%s", debug.Stack())
			res = Result{Error: &ErrorBody{Code: CodeInternal, Message: "internal error in " + name}}
		}
		if op.def.Mutating {
			c.record(name, args, data, res, time.Since(start))
		}
	}()

	log.Debug("call")
	data, err = op.run(ctx, args)
	if err != nil {
		body := toErrorBody(err)
		if body.Code == CodeInternal {
			log.WithError(err).Error("operation failed")
		} else {
			log.WithError(err).Debugf("operation failed with %s", body.Code)
		}
		return Result{Error: body}
	}
	log.WithField("duration", time.Since(start)).Debug("done")
	return Result{OK: true, Data: data}
}

// record writes the audit event of a mutating call. Audit failures are
// logged, never surfaced to the agent.
func (c *Catalog) record(name string, args json.RawMessage, data any, res Result, d time.Duration) {
	var scope struct {
		LabID  string `json:"lab_id"`
		NodeID string `json:"node_id"`
	}
	_ = json.Unmarshal(args, &scope)
	switch v := data.(type) {
	case model.Lab:
		scope.LabID = v.ID
	case *labgen.Result:
		scope.LabID = v.LabID
	}

	event := audit.NewEvent(c.deps.User, name).
		WithLab(scope.LabID).
		WithNode(scope.NodeID).
		WithParams(redact(args)).
		WithDuration(d)
	if res.OK {
		event.WithSuccess()
	} else {
		event.WithError(res.Error.Code, fmt.Errorf("%s", res.Error.Message))
	}

	var err error
	if c.deps.Audit != nil {
		err = c.deps.Audit.Log(event)
	} else {
		err = audit.Log(event)
	}
	if err != nil {
		util.WithOperation(name).WithError(err).Warn("audit write failed")
	}
}

// redact drops argument values that must not be persisted. Configurations
// and rendered text can be large, so only their size is kept.
func redact(args json.RawMessage) json.RawMessage {
	var m map[string]any
	if json.Unmarshal(args, &m) != nil {
		return args
	}
	changed := false
	for _, key := range []string{"config", "password"} {
		if v, ok := m[key].(string); ok {
			m[key] = fmt.Sprintf("<%d bytes>", len(v))
			changed = true
		}
	}
	if !changed {
		return args
	}
	out, err := json.Marshal(m)
	if err != nil {
		return args
	}
	return out
}
