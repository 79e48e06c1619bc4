package feed

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pricewatch/crypto-notify/pkg/auth"
)

type triggerRequest struct {
	Symbol   string  `json:"symbol"`
	NewPrice float64 `json:"newPrice"`
	UserID   int64   `json:"userId"`
}

type triggerResponse struct {
	Message string         `json:"message"`
	Details triggerDetails `json:"details"`
}

type triggerDetails struct {
	Symbol           string  `json:"symbol"`
	OldPrice         float64 `json:"oldPrice"`
	NewPrice         float64 `json:"newPrice"`
	PercentageChange float64 `json:"percentageChange"`
}

// TriggerHandler exposes a manual way to push a price update through the
// pipeline. The old price is synthesized below the submitted one so that the
// resulting change is visibly positive.
type TriggerHandler struct {
	notifier Notifier
	verifier *auth.Verifier
	randFn   func() float64 // in [0, 1)
	logger   *zap.Logger
}

func NewTriggerHandler(notifier Notifier, verifier *auth.Verifier, randFn func() float64, logger *zap.Logger) *TriggerHandler {
	return &TriggerHandler{
		notifier: notifier,
		verifier: verifier,
		randFn:   randFn,
		logger:   logger,
	}
}

func (h *TriggerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, ok := h.verifier.SubjectID(bearerToken(r)); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" || req.NewPrice <= 0 {
		http.Error(w, "symbol and positive newPrice required", http.StatusBadRequest)
		return
	}

	oldPrice := req.NewPrice * (1 - h.randFn()*0.5)
	event := h.notifier.NotifyPriceChange(r.Context(), strings.ToUpper(req.Symbol), oldPrice, req.NewPrice, req.UserID)

	h.logger.Info("Triggered price update",
		zap.String("symbol", event.Symbol),
		zap.Float64("percentage_change", event.PercentageChange))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(triggerResponse{
		Message: "Price update triggered",
		Details: triggerDetails{
			Symbol:           event.Symbol,
			OldPrice:         event.OldPrice,
			NewPrice:         event.NewPrice,
			PercentageChange: event.PercentageChange,
		},
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
