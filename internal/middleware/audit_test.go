package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/timetable-engine/pkg/middleware/requestid"
)

func TestAuditRecordsSuccessfulMutations(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	router := gin.New()
	router.Use(requestid.Middleware())
	router.DELETE("/timetables/:id", Audit(zap.New(core), "timetable.delete"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.POST("/timetables/save", Audit(zap.New(core), "timetable.save"), func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodDelete, "/timetables/v-1", nil)
	req.Header.Set(ActorHeader, "planner-7")
	router.ServeHTTP(httptest.NewRecorder(), req)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/timetables/save", nil))

	entries := logs.FilterMessage("audit").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "timetable.delete", fields["action"])
	assert.Equal(t, "planner-7", fields["actor"])
	assert.Equal(t, "v-1", fields["resource_id"])
	assert.Equal(t, "/timetables/:id", fields["route"])
	assert.NotEmpty(t, fields["request_id"])
}
