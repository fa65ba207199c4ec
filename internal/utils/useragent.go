package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
	"github.com/tourdesk/excursion-backend/internal/models"
)

// BookingChannel classifies the sales channel of a request from its
// User-Agent header. Native apps send "TourDesk/<version> (...)".
func BookingChannel(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return models.ChannelUnknown
	}

	if strings.HasPrefix(strings.ToLower(userAgent), "tourdesk/") {
		return models.ChannelMobile
	}

	parser := ua.New(userAgent)
	switch {
	case parser.Bot():
		return models.ChannelBot
	case parser.Mobile():
		return models.ChannelMobile
	}

	if name, _ := parser.Browser(); name == "" {
		return models.ChannelUnknown
	}
	return models.ChannelWeb
}
