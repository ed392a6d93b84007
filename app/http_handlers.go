package app

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/ZakirShahzad/allergy-med-scan-guide/app/models"
	"github.com/ZakirShahzad/allergy-med-scan-guide/auth"

	"github.com/gin-gonic/gin"
)

// GetAnalysisHistory returns the authenticated user's recent analyses.
func GetAnalysisHistory(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	limit := 25
	if q := c.Query("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 {
			limit = v
		}
	}

	history, err := listAnalysisHistory(c.Request.Context(), claims.Subject, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	if history == nil {
		history = []models.AnalysisHistory{}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(history),
		"history": history,
	})
}

// ListMedications returns the authenticated user's medication profile.
func ListMedications(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	meds, err := listMedications(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load medications"})
		return
	}
	if meds == nil {
		meds = []models.Medication{}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":       len(meds),
		"medications": meds,
	})
}

// AddMedication appends one entry to the medication profile.
func AddMedication(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var med models.Medication
	if err := c.ShouldBindJSON(&med); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if med.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "medication_name is required"})
		return
	}

	id, err := insertMedication(c.Request.Context(), claims.Subject, med)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save medication"})
		return
	}
	med.ID = id

	c.JSON(http.StatusCreated, med)
}

// DeleteMedication removes one entry from the medication profile.
func DeleteMedication(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid medication id"})
		return
	}

	deleted, err := deleteMedication(c.Request.Context(), claims.Subject, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete medication"})
		return
	}
	if !deleted && db != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "medication not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func subscriberOrDefault(c *gin.Context, userID string) (models.Subscriber, bool) {
	sub, err := getSubscriberByUserID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			claims, _ := auth.ClaimsFromContext(c.Request.Context())
			_ = UpsertSubscriberFromClaims(c.Request.Context(), claims)
			sub, err = getSubscriberByUserID(c.Request.Context(), userID)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscriber"})
			return models.Subscriber{}, false
		}
	}
	return sub, true
}
