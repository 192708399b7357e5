package pgconn

import (
	"github.com/mevdschee/pgwire/binding"
	"github.com/mevdschee/pgwire/metrics"
	"github.com/mevdschee/pgwire/pgerr"
	"github.com/mevdschee/pgwire/protocol"
)

// stepKind names the five request shapes of spec.md §4.F's table, plus
// the pipelining supplement.
type stepKind int

const (
	stepSimple stepKind = iota
	stepParse
	stepDescribe
	stepExecute
	stepClose
	stepPipeline
)

func (k stepKind) label() string {
	switch k {
	case stepSimple:
		return "simple"
	case stepParse:
		return "prepare"
	case stepDescribe:
		return "describe"
	case stepExecute:
		return "execute"
	case stepClose:
		return "unprepare"
	case stepPipeline:
		return "pipeline"
	default:
		return "unknown"
	}
}

// step is one outstanding request, resolved by exactly one
// ReadyForQuery — the Sync that ends its frontend message group.
type step struct {
	kind      stepKind
	name      string
	remaining int     // stepPipeline: executes left to observe a CommandComplete for
	paramOIDs []int32 // stepDescribe: filled in by ParameterDescription
}

func (c *Connection) currentStep() *step {
	if len(c.requests) == 0 {
		return nil
	}
	return c.requests[0]
}

func (c *Connection) pushStep(s *step) {
	c.requests = append(c.requests, s)
}

// Perform submits a simple-query request. Unlike preparsed statements,
// the raw SQL bypasses the preparser entirely and may contain multiple
// ';'-separated statements — the asymmetry spec.md's open question
// calls out explicitly.
func (c *Connection) Perform(sql string) error {
	if err := c.requireReady(); err != nil {
		return err
	}
	enc := protocol.NewEncoder()
	c.queueWrite(enc.Query(sql))
	c.pushStep(&step{kind: stepSimple})
	metrics.RequestTotal.WithLabelValues("simple", "submitted").Inc()
	return c.flushWrite()
}

// Prepare submits Parse(name, query, []) + Sync.
func (c *Connection) Prepare(name, query string) error {
	if err := c.requireReady(); err != nil {
		return err
	}
	enc := protocol.NewEncoder()
	c.queueWrite(enc.Parse(name, query, nil))
	c.queueWrite(enc.Sync())
	c.registry.Parse(name)
	c.pushStep(&step{kind: stepParse, name: name})
	metrics.RequestTotal.WithLabelValues("prepare", "submitted").Inc()
	return c.flushWrite()
}

// DescribePrepared submits Describe('S', name) + Sync.
func (c *Connection) DescribePrepared(name string) error {
	if err := c.requireReady(); err != nil {
		return err
	}
	enc := protocol.NewEncoder()
	c.queueWrite(enc.Describe(protocol.DescribeStatement, name))
	c.queueWrite(enc.Sync())
	c.pushStep(&step{kind: stepDescribe, name: name})
	metrics.RequestTotal.WithLabelValues("describe", "submitted").Inc()
	return c.flushWrite()
}

// ExecutePrepared submits Bind+Describe('P')+Execute+Sync against a
// previously prepared statement, bound by b.
func (c *Connection) ExecutePrepared(portalName, stmtName string, b *binding.Binding, resultFormats []protocol.DataFormat, maxRows int32) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if err := c.requireReady(); err != nil {
		return err
	}
	params := make([]protocol.BindParam, b.Len())
	for i, v := range b.Values() {
		params[i] = protocol.BindParam{Format: protocol.FormatText, Value: v}
	}
	enc := protocol.NewEncoder()
	c.queueWrite(enc.Bind(portalName, stmtName, params, resultFormats))
	c.queueWrite(enc.Describe(protocol.DescribePortal, portalName))
	c.queueWrite(enc.Execute(portalName, maxRows))
	c.queueWrite(enc.Sync())
	c.pushStep(&step{kind: stepExecute})
	metrics.RequestTotal.WithLabelValues("execute", "submitted").Inc()
	return c.flushWrite()
}

// Unprepare submits Close('S', name) + Sync; unpreparing the unnamed
// statement is rejected, matching registry.Close.
func (c *Connection) Unprepare(name string) error {
	if name == "" {
		return pgerr.New(pgerr.InvalidArgument, "pgconn: cannot unprepare the unnamed statement")
	}
	if err := c.requireReady(); err != nil {
		return err
	}
	enc := protocol.NewEncoder()
	c.queueWrite(enc.Close(protocol.CloseStatement, name))
	c.queueWrite(enc.Sync())
	c.pushStep(&step{kind: stepClose, name: name})
	metrics.RequestTotal.WithLabelValues("unprepare", "submitted").Inc()
	return c.flushWrite()
}

// SubmitPipeline submits a pre-rendered batch of Bind+Describe+Execute
// groups (from pipeline.Pipeline.Flush) ending in one Sync, tracking
// itemCount CommandCompletes before the single ReadyForQuery ends the
// whole group — spec.md's pipelining supplement, one layer up from
// writebatch.Manager's batch-then-flush idea.
func (c *Connection) SubmitPipeline(batch []byte, itemCount int) error {
	if itemCount <= 0 {
		return pgerr.New(pgerr.InvalidArgument, "pgconn: itemCount must be positive, got %d", itemCount)
	}
	if err := c.requireReady(); err != nil {
		return err
	}
	c.queueWrite(batch)
	c.pushStep(&step{kind: stepPipeline, remaining: itemCount})
	return c.flushWrite()
}

func (c *Connection) requireReady() error {
	if !c.IsReadyForRequest() {
		return pgerr.New(pgerr.InvalidArgument, "pgconn: connection is not ready for a request (status=%s)", c.status)
	}
	return nil
}

// WaitResponse blocks until a row, a server error, or the end of the
// oldest outstanding request becomes observable, or timeoutMs elapses.
func (c *Connection) WaitResponse(timeoutMs int) error {
	if timeoutMs < -1 {
		return pgerr.New(pgerr.InvalidArgument, "pgconn: timeout must be >= -1, got %d", timeoutMs)
	}
	deadline := deadlineFrom(timeoutMs)
	requestsAtStart := len(c.requests)
	for {
		if err := c.Pump(); err != nil {
			return err
		}
		if c.respRow != nil || c.respErr != nil {
			return nil
		}
		if len(c.requests) < requestsAtStart {
			return nil
		}
		if pastDeadline(deadline) {
			return pgerr.New(pgerr.TimedOut, "pgconn: wait_response timed out")
		}
		c.waitReadableOrWritable(sliceRemaining(deadline))
	}
}

// ForEach drains the current request's rows, invoking body for each
// one and releasing it afterward, until an ErrorResponse or the
// request's ReadyForQuery is observed. A CommandComplete alone does not
// end the loop; it stays visible through Completion.
func (c *Connection) ForEach(timeoutMs int, body func(protocol.DataRow) error) error {
	requestsAtStart := len(c.requests)
	for len(c.requests) >= requestsAtStart && requestsAtStart > 0 {
		if err := c.WaitResponse(timeoutMs); err != nil {
			return err
		}
		if row, ok := c.ReleaseRow(); ok {
			metrics.RowsStreamedTotal.WithLabelValues("for_each").Inc()
			if err := body(row); err != nil {
				return err
			}
			continue
		}
		if _, ok := c.ServerErr(); ok {
			return nil
		}
		if len(c.requests) < requestsAtStart {
			return nil
		}
	}
	return nil
}

// route classifies one decoded backend message per spec.md §4.F's
// response-routing table.
func (c *Connection) route(msg protocol.BackendMessage) error {
	switch m := msg.(type) {
	case protocol.ParameterStatus:
		c.serverParams[m.Name] = m.Value
	case protocol.BackendKeyData:
		c.processID, c.secretKey = m.ProcessID, m.SecretKey
	case protocol.NoticeResponse:
		c.signals.PushNotice(m)
	case protocol.NotificationResponse:
		c.signals.PushNotification(m)

	case protocol.AuthenticationOk:
		// No reply needed; ParameterStatus/BackendKeyData/ReadyForQuery follow.
	case protocol.AuthenticationCleartextPassword:
		return c.respondCleartext()
	case protocol.AuthenticationMD5Password:
		return c.respondMD5(m.Salt)
	case protocol.AuthenticationSASL:
		return c.respondSASLInit(m.Mechanisms)
	case protocol.AuthenticationSASLContinue:
		return c.respondSASLContinue(m.Data)
	case protocol.AuthenticationSASLFinal:
		return c.verifySASLFinal(m.Data)

	case protocol.ReadyForQuery:
		c.txStatus = m.Status
		if c.status != Connected && c.status != Failure {
			c.status = Connected
		}
		if len(c.requests) > 0 {
			s := c.requests[0]
			metrics.RequestTotal.WithLabelValues(s.kind.label(), "ok").Inc()
			c.requests = c.requests[1:]
		}

	case protocol.ErrorResponse:
		c.clearSlots()
		c.respErr = pgerr.ParseFields(m.Fields)
		if len(c.requests) > 0 {
			metrics.RequestTotal.WithLabelValues(c.requests[0].kind.label(), "error").Inc()
		}
		if c.status != Connected {
			// spec.md §4.F: "any -> failure: ... or ErrorResponse during
			// handshake". Nothing short of ReadyForQuery follows an
			// ErrorResponse seen before the handshake completes.
			c.fail(c.respErr)
		}

	case protocol.ParseComplete:
		// Consumed; Prepare exposes no further slot per spec.md §4.F.
	case protocol.ParameterDescription:
		if s := c.currentStep(); s != nil && s.kind == stepDescribe {
			s.paramOIDs = m.OIDs
		}
	case protocol.RowDescription:
		c.finishDescribe(m, true)
	case protocol.NoData:
		c.finishDescribe(protocol.RowDescription{}, false)
	case protocol.DataRow:
		c.clearSlots()
		c.respRow = &m
	case protocol.CommandComplete:
		c.clearSlots()
		c.respCompletion = &m
		if s := c.currentStep(); s != nil && s.kind == stepPipeline {
			s.remaining--
		}
	case protocol.EmptyQueryResponse:
		c.clearSlots()
		c.respCompletion = &protocol.CommandComplete{}
	case protocol.PortalSuspended:
		c.clearSlots()
		c.respCompletion = &protocol.CommandComplete{}
	case protocol.BindComplete:
		// Consumed; rows or CommandComplete follow.
	case protocol.CloseComplete:
		if s := c.currentStep(); s != nil && s.kind == stepClose {
			if err := c.registry.Close(s.name); err != nil {
				c.clearSlots()
				c.respErr = err
			}
		}
	case protocol.CopyInResponse, protocol.CopyOutResponse, protocol.CopyBothResponse:
		c.clearSlots()
		c.respErr = ErrCopyNotSupported
	}
	return nil
}

func (c *Connection) finishDescribe(row protocol.RowDescription, hasRow bool) {
	s := c.currentStep()
	if s == nil || s.kind != stepDescribe {
		return
	}
	if err := c.registry.Describe(s.name, s.paramOIDs, row, hasRow); err != nil {
		c.clearSlots()
		c.respErr = err
		return
	}
	entry, _ := c.registry.Lookup(s.name)
	c.clearSlots()
	c.respPrepared = entry
}
