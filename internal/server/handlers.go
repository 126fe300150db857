package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wnt/health-to-earn/internal/chain"
	"github.com/wnt/health-to-earn/internal/store"
	"github.com/wnt/health-to-earn/internal/strava"
)

// addressParam is the query parameter carrying a dHealth address.
const addressParam = "dhealth.address"

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    AppName,
		"version": AppVersion,
	})
}

// handleStatus answers whether an address belongs to a linked athlete.
func (s *Server) handleStatus(c *gin.Context) {
	address, ok := s.boundAddress(c)
	if !ok {
		return
	}

	_, err := s.store.FindUserByAddress(c.Request.Context(), address)
	switch {
	case err == nil:
		c.Status(http.StatusOK)
	case errors.Is(err, store.ErrNotFound):
		c.Status(http.StatusNotFound)
	default:
		s.logger.Error().Err(err).Msg("Status lookup failed")
		c.Status(http.StatusInternalServerError)
	}
}

// handleReferral returns the caller's referral code, creating one on
// first request.
func (s *Server) handleReferral(c *gin.Context) {
	address, ok := s.boundAddress(c)
	if !ok {
		return
	}

	user, err := s.store.FindUserByAddress(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		s.logger.Error().Err(err).Msg("Referral lookup failed")
		c.Status(http.StatusInternalServerError)
		return
	}

	code, err := s.store.EnsureReferralCode(c.Request.Context(), user.AthleteID)
	if err != nil {
		s.logger.Error().Err(err).Msg("Referral code generation failed")
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"referralCode": code})
}

// handleWebhookVerify answers Strava's subscription challenge.
func (s *Server) handleWebhookVerify(c *gin.Context) {
	mode, hasMode := c.GetQuery("hub.mode")
	token, hasToken := c.GetQuery("hub.verify_token")
	if !hasMode || !hasToken {
		c.Status(http.StatusBadRequest)
		return
	}

	challenge, err := s.webhook.VerifySubscription(mode, token, c.Query("hub.challenge"))
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hub.challenge": challenge})
}

// handleWebhookEvent ingests an activity event. The answer is always
// 200: Strava bans endpoints that respond with failure codes.
func (s *Server) handleWebhookEvent(c *gin.Context) {
	var event strava.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		s.logger.Warn().Err(err).Msg("Malformed webhook event")
		c.String(http.StatusOK, string(strava.EventIgnored))
		return
	}

	result := s.webhook.HandleActivityEvent(c.Request.Context(), event)
	c.String(http.StatusOK, string(result))
}

func (s *Server) handleStatistics(c *gin.Context) {
	totals, err := s.store.Totals(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Statistics lookup failed")
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"countUsers":     totals.CountUsers,
		"countRewards":   totals.CountRewards,
		"countReferrals": totals.CountReferrals,
	})
}

// boundAddress extracts and validates the dhealth.address parameter,
// answering 400 itself when it is missing or malformed.
func (s *Server) boundAddress(c *gin.Context) (string, bool) {
	address, has := c.GetQuery(addressParam)
	if !has || !chain.IsValidAddress(address) {
		c.Status(http.StatusBadRequest)
		return "", false
	}
	return address, true
}
