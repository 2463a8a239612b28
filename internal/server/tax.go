package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	taxdomain "github.com/smallbiznis/taxledger/internal/tax/domain"
)

type nexusRequest struct {
	Origin      taxdomain.Address `json:"origin"`
	Destination taxdomain.Address `json:"destination"`
}

func (s *Server) DetermineNexus(c *gin.Context) {
	tenantID, err := tenantFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req nexusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.nexus.DetermineNexus(c.Request.Context(), taxdomain.NexusRequest{
		Origin:      req.Origin,
		Destination: req.Destination,
		TenantID:    tenantID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CalculateTax(c *gin.Context) {
	var req taxdomain.CalculationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.calculator.Calculate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateJurisdiction(c *gin.Context) {
	var req taxdomain.CreateJurisdictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.taxMgmt.CreateJurisdiction(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListJurisdictions(c *gin.Context) {
	parentID, err := optionalIDQuery(c, "parent_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.taxMgmt.ListJurisdictions(c.Request.Context(), parentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetJurisdictionByCode(c *gin.Context) {
	item, err := s.taxMgmt.GetJurisdictionByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) CreateTaxCode(c *gin.Context) {
	var req taxdomain.CreateTaxCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.taxMgmt.CreateTaxCode(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTaxCodes(c *gin.Context) {
	items, err := s.taxMgmt.ListTaxCodes(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateTaxRule(c *gin.Context) {
	var req taxdomain.CreateTaxRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.taxMgmt.CreateTaxRule(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTaxRules(c *gin.Context) {
	jurisdictionID, err := optionalIDQuery(c, "jurisdiction_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.taxMgmt.ListTaxRules(c.Request.Context(), jurisdictionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) RegisterNexus(c *gin.Context) {
	tenantID, err := tenantFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req taxdomain.RegisterNexusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.TenantID = tenantID

	resp, err := s.taxMgmt.RegisterNexus(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func optionalIDQuery(c *gin.Context, key string) (*snowflake.ID, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return nil, newValidationError(key, "invalid_id", "invalid id")
	}
	return &id, nil
}
