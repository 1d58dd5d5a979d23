package statusapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"acaqueue/pkg/models"
)

// appSummary is the list-view shape returned by GET /apps: cheap fields only,
// no per-queue history.
type appSummary struct {
	ContainerApp        string `json:"containerApp"`
	ResourceGroup       string `json:"resourceGroup"`
	DesiredReplicas     int    `json:"desiredReplicas"`
	LastAction          string `json:"lastAction"`
	LastActionResult    string `json:"lastActionResult"`
	RestartAttemptCount int    `json:"restartAttemptCount"`
}

// appDetail is the GET /apps/:name shape: the full mapping plus the full
// persisted RuntimeState.
type appDetail struct {
	Mapping *models.AppMapping  `json:"mapping"`
	State   models.RuntimeState `json:"state"`
}

func (s *Server) findMapping(name string) *models.AppMapping {
	for _, m := range s.mappings {
		if m.ContainerApp == name {
			return m
		}
	}
	return nil
}

func (s *Server) listApps(c *gin.Context) {
	ctx := c.Request.Context()
	out := make([]appSummary, 0, len(s.mappings))
	for _, m := range s.mappings {
		state, err := s.st.Load(ctx, m.ContainerApp)
		if err != nil {
			state = models.NewRuntimeState(m.ContainerApp)
		}
		out = append(out, appSummary{
			ContainerApp:        m.ContainerApp,
			ResourceGroup:       m.ResourceGroup,
			DesiredReplicas:     m.DesiredReplicas,
			LastAction:          state.LastAction,
			LastActionResult:    state.LastActionResult,
			RestartAttemptCount: state.RestartAttemptCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"apps": out})
}

func (s *Server) getApp(c *gin.Context) {
	name := c.Param("name")
	mapping := s.findMapping(name)
	if mapping == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "app not found"})
		return
	}

	state, err := s.st.Load(c.Request.Context(), name)
	if err != nil {
		state = models.NewRuntimeState(name)
	}

	c.JSON(http.StatusOK, appDetail{Mapping: mapping, State: state})
}
