package session

import (
	"fmt"
	"log/slog"

	"go.chrisrx.dev/reconf/protocol"
)

func (s *Session) handleFrame(frame []byte) {
	m, err := protocol.Decode(frame)
	if err != nil {
		s.logger.Warn("cannot decode frame", slog.Any("error", err))
		s.reply(s.build.JSONParseError())
		s.report(err)
		return
	}
	s.dispatch(m)
	s.messages.notify(m)
	s.deliver(m)
}

func (s *Session) dispatch(m protocol.Message) {
	switch m.Kind {
	case protocol.ConfigurationKind:
		switch m.Verb {
		case protocol.NotifyVerb:
			s.logger.Debug("configuration announced", slog.String("id", m.ID))
		case protocol.PatchVerb:
			s.handlePatch(m)
		case protocol.ReadVerb:
			if !s.answerReads {
				s.reply(s.build.UnsupportedVerb(m.ID))
				return
			}
			s.reply(s.build.Notify(protocol.ConfigurationKind, s.Config(), m.ID))
		default:
			s.reply(s.build.UnsupportedVerb(m.ID))
		}
	case protocol.ErrorKind:
		// Never answered: two sessions would bounce errors forever.
		code, _ := m.ErrorCode()
		s.logger.Warn("peer reported error",
			slog.String("code", string(code)),
			slog.String("id", m.ID),
		)
		s.report(&PeerError{Code: code, ID: m.ID})
	default:
		s.reply(s.build.UnsupportedMessage(m.ID))
	}
}

func (s *Session) handlePatch(m protocol.Message) {
	logger := s.logger.With(slog.String("id", m.ID))

	ps, err := m.PatchSet()
	if err != nil {
		s.rejectPatch(logger, m.ID, err)
		return
	}

	s.cfgMu.Lock()
	if s.State() != Open {
		s.cfgMu.Unlock()
		logger.Debug("dropping patch on closed session")
		return
	}
	next, err := protocol.Apply(s.config, ps)
	if err != nil {
		s.cfgMu.Unlock()
		s.rejectPatch(logger, m.ID, err)
		return
	}
	s.config = next
	s.cfgMu.Unlock()

	logger.Info("configuration patched", slog.Int("operations", len(ps)))
	s.reconfigure.notify(Reconfigure{ID: m.ID, Config: protocol.Clone(next)})
}

func (s *Session) rejectPatch(logger *slog.Logger, id string, err error) {
	logger.Warn("patch rejected", slog.Any("error", err))
	s.reply(s.build.ApplyFailed(id))
	s.report(fmt.Errorf("session: patch %s: %w", id, err))
}
