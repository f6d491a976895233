package tests

import (
	"testing"

	"github.com/fleetsight/fleetsight/internal/api/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestHealthCheck(t *testing.T, engine *gin.Engine) {
	rec := doJSON(t, engine, "GET", "/health", "", nil)
	assert.Equal(t, 200, rec.Code)

	resp := decodeJSON[dto.HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
}
