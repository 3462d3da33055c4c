package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/chazu/m43/pkg/parser"
	"github.com/chazu/m43/tracestore"
	"github.com/chazu/m43/vm"
)

// DebugServiceName is the fully-qualified name of the debug service.
const DebugServiceName = "m43.v1.DebugService"

// Procedure paths served by the debug service.
const (
	DebugServiceOpenProcedure  = "/" + DebugServiceName + "/Open"
	DebugServiceStepProcedure  = "/" + DebugServiceName + "/Step"
	DebugServiceRunProcedure   = "/" + DebugServiceName + "/Run"
	DebugServiceStateProcedure = "/" + DebugServiceName + "/State"
	DebugServiceBreakProcedure = "/" + DebugServiceName + "/Break"
	DebugServiceCloseProcedure = "/" + DebugServiceName + "/Close"
)

// DebugService drives debugger sessions over RPC.
type DebugService struct {
	worker    *VMWorker
	sessions  *SessionStore
	traces    *tracestore.Store
	stepLimit int
}

// NewDebugService creates a DebugService. traces may be nil.
func NewDebugService(worker *VMWorker, sessions *SessionStore, traces *tracestore.Store, stepLimit int) *DebugService {
	return &DebugService{
		worker:    worker,
		sessions:  sessions,
		traces:    traces,
		stepLimit: stepLimit,
	}
}

// NewDebugServiceHandler builds an HTTP handler for every procedure of svc.
// It returns the path prefix to mount the handler on.
func NewDebugServiceHandler(svc *DebugService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(DebugServiceOpenProcedure, connect.NewUnaryHandler(DebugServiceOpenProcedure, svc.Open, opts...))
	mux.Handle(DebugServiceStepProcedure, connect.NewUnaryHandler(DebugServiceStepProcedure, svc.Step, opts...))
	mux.Handle(DebugServiceRunProcedure, connect.NewUnaryHandler(DebugServiceRunProcedure, svc.Run, opts...))
	mux.Handle(DebugServiceStateProcedure, connect.NewUnaryHandler(DebugServiceStateProcedure, svc.State, opts...))
	mux.Handle(DebugServiceBreakProcedure, connect.NewUnaryHandler(DebugServiceBreakProcedure, svc.Break, opts...))
	mux.Handle(DebugServiceCloseProcedure, connect.NewUnaryHandler(DebugServiceCloseProcedure, svc.Close, opts...))
	return "/" + DebugServiceName + "/", mux
}

// ---------------------------------------------------------------------------
// Open
// ---------------------------------------------------------------------------

// Open parses the program text and starts a session on it.
func (s *DebugService) Open(
	ctx context.Context,
	req *connect.Request[OpenRequest],
) (*connect.Response[OpenResponse], error) {
	msg := req.Msg
	g, err := parser.Parse(msg.Source)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	var opts []vm.Option
	if s.stepLimit > 0 {
		opts = append(opts, vm.WithStepLimit(s.stepLimit))
	}
	session, err := s.sessions.Create(msg.Name, msg.Source, g, msg.Breakpoints, msg.Input, opts...)
	if err != nil {
		if errors.Is(err, vm.FaultMissingStart) || errors.Is(err, vm.FaultBadBreakpoints) {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	log.Infof("opened session %s (%dx%d)", session.ID, g.Width(), g.Height())

	result, err := s.worker.Do(func() any {
		d := session.debugger
		return &OpenResponse{
			SessionID:   session.ID,
			State:       d.State(),
			Breakpoints: d.Breakpoints(),
			Grid:        vm.RenderGrid(d.Grid(), d.State().Pos),
		}
	})
	if err != nil {
		return nil, workerError(err)
	}
	return connect.NewResponse(result.(*OpenResponse)), nil
}

// ---------------------------------------------------------------------------
// Step / Run
// ---------------------------------------------------------------------------

// Step executes exactly one step, ignoring breakpoints.
func (s *DebugService) Step(
	ctx context.Context,
	req *connect.Request[StepRequest],
) (*connect.Response[ExecResponse], error) {
	resp, err := s.exec(ctx, req.Msg.SessionID, req.Msg.Input, func(ctx context.Context, d *vm.Debugger) error {
		return d.Step()
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(resp), nil
}

// Run continues until the program halts, fails, or reaches a breakpoint.
// A cancelled request leaves the session where it stopped.
func (s *DebugService) Run(
	ctx context.Context,
	req *connect.Request[RunRequest],
) (*connect.Response[ExecResponse], error) {
	resp, err := s.exec(ctx, req.Msg.SessionID, req.Msg.Input, func(ctx context.Context, d *vm.Debugger) error {
		return d.RunContext(ctx)
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(resp), nil
}

// exec runs fn on the session's debugger. Program faults are part of the
// response; only service problems become RPC errors.
func (s *DebugService) exec(ctx context.Context, id string, input []vm.Value, fn func(context.Context, *vm.Debugger) error) (*ExecResponse, error) {
	session, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	result, err := s.worker.Do(func() any {
		session.input = append(session.input, input...)
		d := session.debugger
		stepErr := fn(ctx, d)

		resp := &ExecResponse{
			State:  d.State(),
			Output: session.drain(),
			Paused: d.IsPaused(),
		}
		if stepErr != nil {
			resp.Error = stepErr.Error()
			if f, ok := vm.FaultOf(stepErr); ok {
				resp.Fault = f.Code()
			}
		}
		s.record(ctx, session)
		return resp
	})
	if err != nil {
		return nil, workerError(err)
	}
	return result.(*ExecResponse), nil
}

// record stores a finished session in the run history once.
// Must be called on the worker goroutine.
func (s *DebugService) record(ctx context.Context, session *Session) {
	d := session.debugger
	if s.traces == nil || session.recorded || d.Status() == vm.Running {
		return
	}
	session.recorded = true
	name := session.Name
	if name == "" {
		name = session.ID
	}
	run := tracestore.NewRun(name, session.Source, d.Steps(), session.transcript, d.Err())
	if _, err := s.traces.Record(context.WithoutCancel(ctx), run); err != nil {
		log.Errorf("recording session %s: %s", session.ID, err)
	}
}

// ---------------------------------------------------------------------------
// State / Break / Close
// ---------------------------------------------------------------------------

// State returns the current snapshot, breakpoints and rendered grid.
func (s *DebugService) State(
	ctx context.Context,
	req *connect.Request[StateRequest],
) (*connect.Response[StateResponse], error) {
	session, err := s.lookup(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	result, err := s.worker.Do(func() any {
		d := session.debugger
		snap := d.State()
		return &StateResponse{
			State:       snap,
			Breakpoints: d.Breakpoints(),
			Grid:        vm.RenderGrid(d.Grid(), snap.Pos),
			Paused:      d.IsPaused(),
		}
	})
	if err != nil {
		return nil, workerError(err)
	}
	return connect.NewResponse(result.(*StateResponse)), nil
}

// Break adds or removes a breakpoint range.
func (s *DebugService) Break(
	ctx context.Context,
	req *connect.Request[BreakRequest],
) (*connect.Response[BreakResponse], error) {
	msg := req.Msg
	session, err := s.lookup(msg.SessionID)
	if err != nil {
		return nil, err
	}
	result, err := s.worker.Do(func() any {
		d := session.debugger
		resp := &BreakResponse{}
		if msg.Remove != 0 {
			if err := d.RemoveBreakpoint(msg.Remove); err != nil {
				return connect.NewError(connect.CodeNotFound, err)
			}
		} else {
			resp.ID = d.AddBreakpoint(msg.From, msg.To)
		}
		resp.Breakpoints = d.Breakpoints()
		return resp
	})
	if err != nil {
		return nil, workerError(err)
	}
	if cerr, ok := result.(*connect.Error); ok {
		return nil, cerr
	}
	return connect.NewResponse(result.(*BreakResponse)), nil
}

// Close ends a session and returns its full transcript.
func (s *DebugService) Close(
	ctx context.Context,
	req *connect.Request[CloseRequest],
) (*connect.Response[CloseResponse], error) {
	id := req.Msg.SessionID
	session, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	result, err := s.worker.Do(func() any {
		d := session.debugger
		return &CloseResponse{
			Steps:  d.Steps(),
			Status: d.Status().String(),
			Output: session.transcript,
		}
	})
	if err != nil {
		return nil, workerError(err)
	}
	s.sessions.Destroy(id)
	log.Infof("closed session %s", id)
	return connect.NewResponse(result.(*CloseResponse)), nil
}

func (s *DebugService) lookup(id string) (*Session, error) {
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("session_id is required"))
	}
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return session, nil
}

func workerError(err error) error {
	if errors.Is(err, errWorkerStopped) {
		return connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// DebugClient calls a remote DebugService.
type DebugClient struct {
	open  *connect.Client[OpenRequest, OpenResponse]
	step  *connect.Client[StepRequest, ExecResponse]
	run   *connect.Client[RunRequest, ExecResponse]
	state *connect.Client[StateRequest, StateResponse]
	brk   *connect.Client[BreakRequest, BreakResponse]
	close *connect.Client[CloseRequest, CloseResponse]
}

// NewDebugClient creates a client for the service at baseURL,
// e.g. http://localhost:4343.
func NewDebugClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *DebugClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &DebugClient{
		open:  connect.NewClient[OpenRequest, OpenResponse](httpClient, baseURL+DebugServiceOpenProcedure, opts...),
		step:  connect.NewClient[StepRequest, ExecResponse](httpClient, baseURL+DebugServiceStepProcedure, opts...),
		run:   connect.NewClient[RunRequest, ExecResponse](httpClient, baseURL+DebugServiceRunProcedure, opts...),
		state: connect.NewClient[StateRequest, StateResponse](httpClient, baseURL+DebugServiceStateProcedure, opts...),
		brk:   connect.NewClient[BreakRequest, BreakResponse](httpClient, baseURL+DebugServiceBreakProcedure, opts...),
		close: connect.NewClient[CloseRequest, CloseResponse](httpClient, baseURL+DebugServiceCloseProcedure, opts...),
	}
}

func (c *DebugClient) Open(ctx context.Context, req *connect.Request[OpenRequest]) (*connect.Response[OpenResponse], error) {
	return c.open.CallUnary(ctx, req)
}

func (c *DebugClient) Step(ctx context.Context, req *connect.Request[StepRequest]) (*connect.Response[ExecResponse], error) {
	return c.step.CallUnary(ctx, req)
}

func (c *DebugClient) Run(ctx context.Context, req *connect.Request[RunRequest]) (*connect.Response[ExecResponse], error) {
	return c.run.CallUnary(ctx, req)
}

func (c *DebugClient) State(ctx context.Context, req *connect.Request[StateRequest]) (*connect.Response[StateResponse], error) {
	return c.state.CallUnary(ctx, req)
}

func (c *DebugClient) Break(ctx context.Context, req *connect.Request[BreakRequest]) (*connect.Response[BreakResponse], error) {
	return c.brk.CallUnary(ctx, req)
}

func (c *DebugClient) Close(ctx context.Context, req *connect.Request[CloseRequest]) (*connect.Response[CloseResponse], error) {
	return c.close.CallUnary(ctx, req)
}
