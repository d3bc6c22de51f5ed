package server

import (
	"time"

	"github.com/stestefe/reality-warpers/internal/network"
)

// Send writes one outbound snapshot to the active client. Without a client it
// is a silent no-op. A failed or timed-out write returns a *WriteError and the
// snapshot is dropped. If part of the frame already went out the stream can no
// longer be framed, so the connection is closed and the read side ends the
// session.
func (s *Server) Send(msg network.OutboundMessage) error {
	s.mu.Lock()
	sess := s.active
	s.mu.Unlock()
	if sess == nil {
		return nil
	}

	payload, err := network.EncodeOutbound(msg)
	if err != nil {
		s.sendsDropped.Add(1)
		return &WriteError{SessionID: sess.ID, Err: err}
	}
	if err := sess.write(payload, s.cfg.WriteTimeout); err != nil {
		s.sendsDropped.Add(1)
		return err
	}
	s.logger.Debug("Sent %d anchors to session %s", len(msg.Anchors), sess.ID)
	return nil
}

func (sess *Session) write(payload []byte, timeout time.Duration) error {
	frame, err := network.AppendFrame(make([]byte, 0, len(payload)+4), sess.framing, payload)
	if err != nil {
		return &WriteError{SessionID: sess.ID, Err: err}
	}

	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()

	if timeout > 0 {
		sess.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	n, err := sess.conn.Write(frame)
	sess.bytesOut.Add(uint64(n))
	if err != nil {
		if n > 0 && n < len(frame) {
			sess.conn.Close()
			return &WriteError{SessionID: sess.ID, Partial: true, Err: err}
		}
		return &WriteError{SessionID: sess.ID, Err: err}
	}
	return nil
}
