package controllers

import (
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"wsd/internal/providers"
)

type HealthController struct {
	channels  providers.ChannelCounter
	rates     providers.RateEntryCounter
	presence  providers.PresenceLister
	startTime time.Time
}

type healthResponse struct {
	Status        string   `json:"status"`
	Uptime        string   `json:"uptime"`
	UptimeSeconds float64  `json:"uptime_seconds"`
	Channels      int      `json:"channels"`
	RateEntries   int      `json:"rate_entries"`
	Joined        []string `json:"joined"`
}

func (hc *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(hc.startTime)
	resp := healthResponse{
		Status:        "ok",
		Uptime:        formatDuration(uptime),
		UptimeSeconds: uptime.Seconds(),
		Channels:      hc.channels.Len(),
		RateEntries:   hc.rates.Len(),
		Joined:        hc.presence.Joined(),
	}

	gson, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(gson)
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
}

func NewHealthController(channels providers.ChannelCounter, rates providers.RateEntryCounter, presence providers.PresenceLister) *HealthController {
	return &HealthController{
		channels:  channels,
		rates:     rates,
		presence:  presence,
		startTime: time.Now(),
	}
}
