package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/goevery/contentsync/internal/content"
	"github.com/goevery/contentsync/internal/ierr"
	"github.com/goevery/contentsync/internal/relay"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type ServerInfo struct {
	WSPort int    `json:"wsPort"`
	Name   string `json:"name,omitempty"`
}

type StatsResponse struct {
	Clients int    `json:"clients"`
	Version uint64 `json:"version"`
}

// PublishRequest mirrors content.Content with every field required.
type PublishRequest struct {
	Kind    *string `json:"kind"`
	Payload *string `json:"payload"`
}

func (r PublishRequest) content() (content.Content, error) {
	if r.Kind == nil {
		return content.Content{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("missing kind"))
	}
	if r.Payload == nil {
		return content.Content{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("missing payload"))
	}

	return content.Content{Kind: content.Kind(*r.Kind), Payload: *r.Payload}, nil
}

type RESTServer struct {
	logger *zap.Logger

	relay relay.Broadcaster
	info  ServerInfo
}

func NewRESTServer(
	logger *zap.Logger,
	broadcaster relay.Broadcaster,
	info ServerInfo,
) *RESTServer {
	return &RESTServer{
		logger,
		broadcaster,
		info,
	}
}

func (s *RESTServer) Register(router *mux.Router) {
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(cors)

	api.HandleFunc("/server-info", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.info)
	}).Methods("GET", "OPTIONS")

	api.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		state, err := s.relay.State(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.writeJSON(w, http.StatusOK, StatsResponse{
			Clients: state.Clients,
			Version: state.Snapshot.Version,
		})
	}).Methods("GET", "OPTIONS")

	api.HandleFunc("/content", func(w http.ResponseWriter, r *http.Request) {
		state, err := s.relay.State(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.writeJSON(w, http.StatusOK, state.Snapshot)
	}).Methods("GET")

	api.HandleFunc("/content", func(w http.ResponseWriter, r *http.Request) {
		var request PublishRequest
		err := json.NewDecoder(r.Body).Decode(&request)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		c, err := request.content()
		if err != nil {
			s.writeError(w, err)
			return
		}

		snapshot, err := s.relay.Update(r.Context(), "", c)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.writeJSON(w, http.StatusOK, snapshot)
	}).Methods("POST", "OPTIONS")
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *RESTServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *RESTServer) writeError(w http.ResponseWriter, err error) {
	var handlerErr ierr.Error

	switch {
	case errors.As(err, &handlerErr) && handlerErr.Code == ierr.ErrorCodeInvalidArgument:
		s.writeJSON(w, http.StatusBadRequest, handlerErr)
	case errors.Is(err, relay.ErrStopped):
		http.Error(w, "relay unavailable", http.StatusServiceUnavailable)
	default:
		s.logger.Error("failed to handle request", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
