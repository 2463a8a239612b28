package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	glsyncdomain "github.com/smallbiznis/taxledger/internal/glsync/domain"
	"go.uber.org/zap"
)

type syncTransactionRequest struct {
	ReferenceID   string `json:"reference_id"`
	ReferenceType string `json:"reference_type"`
}

// SyncTransaction makes one synchronous attempt. The resulting journal entry
// is returned on success; a GL failure answers 502 and leaves a FAILED entry
// behind for GetSyncStatus.
func (s *Server) SyncTransaction(c *gin.Context) {
	tenantID, err := tenantFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req syncTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	referenceID, err := snowflake.ParseString(strings.TrimSpace(req.ReferenceID))
	if err != nil {
		AbortWithError(c, glsyncdomain.ErrInvalidReference)
		return
	}
	referenceType := glsyncdomain.ReferenceType(strings.ToUpper(strings.TrimSpace(req.ReferenceType)))

	ctx := c.Request.Context()
	if err := s.ensureReferenceOwned(c, referenceID, referenceType); err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.glsyncSvc.SyncTransaction(ctx, tenantID, referenceID, referenceType); err != nil {
		if glsyncdomain.IsValidationError(err) {
			AbortWithError(c, err)
			return
		}
		entry, lookupErr := s.glsyncSvc.GetSyncStatus(ctx, tenantID, referenceID)
		if lookupErr == nil && entry != nil && entry.SyncStatus == glsyncdomain.SyncStatusFailed {
			s.log.Warn("gl sync request failed",
				zap.String("reference_id", referenceID.String()),
				zap.String("journal_entry_id", entry.ID.String()),
				zap.Error(err),
			)
			AbortWithError(c, fmt.Errorf("%w: %v", ErrBadGateway, err))
			return
		}
		AbortWithError(c, err)
		return
	}

	entry, err := s.glsyncSvc.GetSyncStatus(ctx, tenantID, referenceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": entry})
}

func (s *Server) GetSyncStatus(c *gin.Context) {
	referenceID, tenantID, err := s.syncLookupParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entry, err := s.glsyncSvc.GetSyncStatus(c.Request.Context(), tenantID, referenceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if entry == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) ListSyncAttempts(c *gin.Context) {
	referenceID, tenantID, err := s.syncLookupParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entries, err := s.glsyncSvc.ListByReference(c.Request.Context(), tenantID, referenceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if entries == nil {
		entries = []glsyncdomain.JournalEntry{}
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *Server) syncLookupParams(c *gin.Context) (snowflake.ID, snowflake.ID, error) {
	tenantID, err := tenantFromContext(c)
	if err != nil {
		return 0, 0, err
	}
	referenceID, err := snowflake.ParseString(strings.TrimSpace(c.Param("reference_id")))
	if err != nil || referenceID == 0 {
		return 0, 0, glsyncdomain.ErrInvalidReference
	}
	return referenceID, tenantID, nil
}

// ensureReferenceOwned rejects invoice references the calling tenant does not
// own. The invoice lookup is tenant scoped, so a foreign id reads as not found.
func (s *Server) ensureReferenceOwned(c *gin.Context, referenceID snowflake.ID, referenceType glsyncdomain.ReferenceType) error {
	if referenceType != glsyncdomain.ReferenceTypeInvoice || referenceID == 0 {
		return nil
	}
	_, err := s.invoiceSvc.GetInvoice(c.Request.Context(), referenceID.String())
	return err
}
