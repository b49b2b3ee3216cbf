package web

import (
	"encoding/json"
	"net/http"

	"github.com/vitos/crypto_dca_bot/internal/domain"
	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"version":     s.engine.Version(),
		"open_trades": s.engine.Book().OpenCount(),
	})
}

type positionView struct {
	Pair               string               `json:"pair"`
	State              domain.PositionState `json:"state"`
	EntryPrice         float64              `json:"entry_price"`
	AveragePrice       float64              `json:"average_price"`
	FilledSafetyOrders int                  `json:"filled_safety_orders"`
	StopPrice          float64              `json:"stop_price"`
	LastPrice          float64              `json:"last_price"`
	Ladder             []domain.LadderEntry `json:"ladder"`
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	// snapshots, never the live engine-owned structs
	positions := s.engine.Positions()
	views := make([]positionView, 0, len(positions))
	for _, pos := range positions {
		views = append(views, positionView{
			Pair:               pos.Pair,
			State:              pos.State,
			EntryPrice:         pos.EntryPrice,
			AveragePrice:       pos.AveragePrice,
			FilledSafetyOrders: pos.FilledSafetyOrders,
			StopPrice:          pos.StopPrice,
			LastPrice:          pos.LastPrice,
			Ladder:             pos.Ladder,
		})
	}
	s.writeJSON(w, views)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.posRepo.ListPositionHistory(r.Context(), 100)
	if err != nil {
		s.logger.Error("Failed to list position history", zap.Error(err))
		http.Error(w, "Failed to list position history", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, records)
}

func (s *Server) handleFills(w http.ResponseWriter, r *http.Request) {
	pair := r.PathValue("pair")
	fills, err := s.fillRepo.ListFills(r.Context(), pair, 100)
	if err != nil {
		s.logger.Error("Failed to list fills", zap.String("pair", pair), zap.Error(err))
		http.Error(w, "Failed to list fills", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, fills)
}
