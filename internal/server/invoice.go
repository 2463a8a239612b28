package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/taxledger/internal/invoice/domain"
)

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.invoiceSvc.CreateInvoice(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	item, err := s.invoiceSvc.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) FinalizeInvoice(c *gin.Context) {
	item, err := s.invoiceSvc.FinalizeInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}
