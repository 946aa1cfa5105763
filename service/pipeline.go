package service

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/frye/ais-to-nmea0183/nmea"
	"github.com/frye/ais-to-nmea0183/vessel"
)

// processLoop drains the handoff queue and feeds every record through
// encode and dispatch, in arrival order, per spec.md §5's ordering
// guarantee.
func (c *Controller) processLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, rec := range c.queue.ReadBatch(64) {
				c.process(rec)
			}
		}
	}
}

// process encodes one record and dispatches each resulting sentence to
// both sinks concurrently, per spec.md §4.7.
func (c *Controller) process(rec *vessel.Record) {
	sentences := nmea.Encode(rec)
	if len(sentences) == 0 {
		c.convertErrors.Add(1)
		if c.metrics != nil {
			c.metrics.RecordMessageProcessed(c.name, rec.Kind.String(), "unsupported")
			c.metrics.RecordError(c.name, "encoder_unsupported")
		}
		c.logger.Debug("no sentence produced for record", "mmsi", rec.MMSI, "kind", rec.Kind.String())
		return
	}

	c.converted.Add(1)
	c.recordPerType(rec.Kind.String())
	if c.metrics != nil {
		c.metrics.RecordMessageProcessed(c.name, rec.Kind.String(), "ok")
	}

	c.ctxMu.RLock()
	ctx := c.ctx
	c.ctxMu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}

	for _, s := range sentences {
		c.dispatch(ctx, terminate(s.String()))
	}
}

// terminate appends the sentence's single CRLF point, the only place in
// the pipeline where a trailing terminator is added, per SPEC_FULL.md
// §9's single-normalization-point design.
func terminate(line string) string {
	if strings.HasSuffix(line, "\r\n") {
		return line
	}
	return line + "\r\n"
}

// dispatch fans one terminated sentence out to the stream and datagram
// sinks concurrently. Either sink may be disabled; a disabled sink is
// simply skipped, not counted as an error.
func (c *Controller) dispatch(ctx context.Context, line string) {
	g, _ := errgroup.WithContext(ctx)
	data := []byte(line)

	if c.broadcastServer != nil {
		g.Go(func() error {
			sent := c.broadcastServer.Broadcast(data)
			c.broadcastSent.Add(int64(sent))
			return nil
		})
	}

	if c.datagramEmitter != nil {
		g.Go(func() error {
			if c.datagramEmitter.Emit(data) {
				c.datagramSent.Add(1)
			} else {
				c.sinkErrors.Add(1)
				if c.metrics != nil {
					c.metrics.RecordError(c.name, "peer_write")
				}
			}
			return nil
		})
	}

	_ = g.Wait()
}

func (c *Controller) recordPerType(kind string) {
	c.perTypeMu.Lock()
	c.perType[kind]++
	c.perTypeMu.Unlock()
}
