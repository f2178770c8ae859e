package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"alsd/errcode"
	"alsd/services/config"
	"alsd/types"
	"alsd/x/timex"
)

const maxBody = 64 << 10

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, types.OKReply{OK: true})
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Ctrl.Status())
}

func (s *Server) postEnable(w http.ResponseWriter, _ *http.Request) {
	if err := s.Ctrl.Enable(); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Settings.SaveEnabled(true); err != nil {
		s.logger().Warn("enabled flag not persisted", "err", err)
	}
	writeJSON(w, http.StatusOK, s.Ctrl.Status())
}

func (s *Server) postDisable(w http.ResponseWriter, _ *http.Request) {
	s.Ctrl.Disable()
	if err := s.Settings.SaveEnabled(false); err != nil {
		s.logger().Warn("enabled flag not persisted", "err", err)
	}
	writeJSON(w, http.StatusOK, s.Ctrl.Status())
}

func (s *Server) getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Settings.Config().ALS)
}

// putSettings merges the body over the current settings, so a client may send
// only the fields it changes.
func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	next := s.Settings.Config().ALS
	if err := decodeBody(r, &next); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Settings.SaveSettings(next); err != nil {
		writeErr(w, err)
		return
	}
	s.Ctrl.Apply(next.Loop())
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) getLive(w http.ResponseWriter, r *http.Request) {
	v, err := s.Ctrl.LiveSample(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.LiveSample{Value: v, OK: true, TS: timex.NowMs()})
}

func (s *Server) getCurve(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Ctrl.Curve(r.Context()))
}

func (s *Server) putCurve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeErr(w, errcode.Wrap(errcode.InvalidPayload, "curve", err))
		return
	}
	c, err := config.ParseCurve(body)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Curves.Set(r.Context(), c); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return errcode.Wrap(errcode.InvalidPayload, "body", err)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errcode.Wrap(errcode.InvalidPayload, "body", err)
	}
	return nil
}
