package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"

	"github.com/poiesis-tes/poiesis/internal/cancel"
	"github.com/poiesis-tes/poiesis/internal/manifest"
	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
	"github.com/poiesis-tes/poiesis/internal/task"
	"github.com/poiesis-tes/poiesis/internal/tes"
)

// createTask inserts the submitted TesTask in state INITIALIZING and
// asynchronously launches its Torc Job (spec.md §4 "Control flow").
func (s *Server) createTask(c *gin.Context) {
	var t tes.Task
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(t.Executors) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one executor is required"})
		return
	}

	if declared := c.GetHeader("TES-Version"); declared != "" {
		if err := task.ValidateTESVersion(declared); err != nil {
			s.fail(c, err)
			return
		}
	}

	taskID := uuid.NewString()
	t.ID = taskID
	t.State = tes.StateInitializing

	now := time.Now().UTC()
	doc := &task.Doc{
		Task:       t,
		UserID:     userID(c),
		TESVersion: task.SupportedTESVersion,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if _, err := s.Persist.InsertTask(c.Request.Context(), doc); err != nil {
		s.fail(c, err)
		return
	}

	taskJSON, err := json.Marshal(t)
	if err != nil {
		s.fail(c, poiesiserr.Wrap(poiesiserr.PlatformError, "marshal task for configmap", err))
		return
	}

	torcJob := manifest.BuildStageJob(manifest.StageJobInput{
		Name:      task.TorcName(taskID),
		Component: manifest.ComponentTorc,
		TaskID:    taskID,
		PartOf:    "poiesis-api",
		Image:     s.Config.Image,
		Args:      []string{"torc"},
		Config:    s.Config,
	})
	torcJob.Spec.Template.Spec.Containers[0].Env = append(torcJob.Spec.Template.Spec.Containers[0].Env,
		corev1.EnvVar{Name: "SERVICE_TYPE", Value: "torc"})

	created, err := s.Orch.CreateJob(c.Request.Context(), torcJob)
	if err != nil {
		s.fail(c, err)
		return
	}

	cm := manifest.BuildTaskConfigMap(taskID, string(taskJSON), string(created.UID))
	if _, err := s.Orch.CreateConfigMap(c.Request.Context(), cm); err != nil {
		s.Log.Errorf("create task configmap for %s: %v", taskID, err)
	}

	c.JSON(http.StatusOK, gin.H{"id": taskID})
}

func (s *Server) getTask(c *gin.Context) {
	taskID := c.Param("id")
	view := tes.View(c.DefaultQuery("view", string(tes.ViewMinimal)))

	doc, err := s.Persist.GetTask(c.Request.Context(), taskID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if uid := userID(c); uid != "" && doc.UserID != "" && doc.UserID != uid {
		s.fail(c, poiesiserr.New(poiesiserr.NotFound, "task not found"))
		return
	}

	c.JSON(http.StatusOK, applyView(doc.Task, view))
}

func (s *Server) listTasks(c *gin.Context) {
	filter := tes.ListFilter{
		NamePrefix: c.Query("name_prefix"),
		State:      tes.State(c.Query("state")),
		TagKey:     c.QueryArray("tag_key"),
		TagValue:   c.QueryArray("tag_value"),
		UserID:     userID(c),
	}
	view := tes.View(c.DefaultQuery("view", string(tes.ViewMinimal)))
	pageSize := queryInt(c, "page_size", 256)

	docs, nextToken, err := s.Persist.ListTasks(c.Request.Context(), filter, pageSize, c.Query("page_token"))
	if err != nil {
		s.fail(c, err)
		return
	}

	tasks := make([]tes.Task, 0, len(docs))
	for _, d := range docs {
		tasks = append(tasks, applyView(d.Task, view))
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "next_page_token": nextToken})
}

func (s *Server) cancelTask(c *gin.Context) {
	taskID := c.Param("id")
	err := cancel.Request(c.Request.Context(), taskID, userID(c), cancel.Deps{
		Persist: s.Persist,
		Orch:    s.Orch,
		Config:  s.Config,
		Log:     s.Log,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) serviceInfo(c *gin.Context) {
	info, err := s.Persist.GetServiceInfo(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// fail maps a poiesiserr.Kind to the HTTP status the TES API surfaces for
// it; an unclassified error is treated as an internal failure.
func (s *Server) fail(c *gin.Context, err error) {
	kind, ok := poiesiserr.KindOf(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusInternalServerError
	switch kind {
	case poiesiserr.BadRequest:
		status = http.StatusBadRequest
	case poiesiserr.Unauthorized:
		status = http.StatusUnauthorized
	case poiesiserr.NotFound:
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
