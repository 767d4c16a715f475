package httpserver

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/detection_backend/internal/detections"
	"github.com/Skotchmaster/detection_backend/internal/events"
	"github.com/Skotchmaster/detection_backend/internal/util"
	"github.com/Skotchmaster/detection_backend/pkg/logging"
	"github.com/Skotchmaster/detection_backend/pkg/transport"
)

type DetectionsHTTP struct {
	Store  *detections.Store
	Events events.Publisher
}

func (h *DetectionsHTTP) Record(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "detections.record")

	var req transport.DetectionRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("record_detection_failed", "status", http.StatusBadRequest, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	det, err := h.Store.Upsert(ctx, detections.Input{
		GID:        req.GID,
		ObjectType: req.ObjectType,
		Color:      req.Color,
		Confidence: req.Confidence,
	})
	if err != nil {
		if errors.Is(err, detections.ErrInvalidInput) {
			l.Warn("record_detection_failed", "status", http.StatusBadRequest, "reason", "invalid input", "error", err)
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		l.Error("record_detection_failed", "status", http.StatusInternalServerError, "reason", "cannot save detection", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot save detection")
	}

	requestID := uuid.NewString()
	if h.Events != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		err := h.Events.Publish(pubCtx, events.TopicDetection, det.GID, events.DetectionEvent{
			Type:       events.TypeDetectionRecorded,
			RequestID:  requestID,
			GID:        det.GID,
			ObjectType: det.ObjectType,
			Color:      det.Color,
			Confidence: det.Confidence,
			RefCount:   det.RefCount,
			At:         det.UpdatedAt,
		})
		cancel()
		if err != nil {
			l.Error("event_publish_failed", "topic", events.TopicDetection, "error", err)
		}
	}

	l.Info("detection_recorded", "g_id", det.GID, "object_type", det.ObjectType, "ref_count", det.RefCount)
	return ok(c, http.StatusOK, transport.DetectionResult{
		RequestID: requestID,
		ID:        det.ID,
		GID:       det.GID,
		RefCount:  det.RefCount,
	})
}

func parseFilter(c echo.Context) (detections.Filter, error) {
	from, err := util.ParseDay(c.QueryParam("from"))
	if err != nil {
		return detections.Filter{}, err
	}
	to, err := util.ParseDay(c.QueryParam("to"))
	if err != nil {
		return detections.Filter{}, err
	}
	return detections.Filter{
		From:       from,
		To:         to,
		ObjectType: c.QueryParam("object_type"),
		Limit:      util.ParseIntDefault(c.QueryParam("limit"), detections.DefaultLimit),
		Offset:     util.ParseIntDefault(c.QueryParam("offset"), 0),
	}, nil
}

func (h *DetectionsHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "detections.list")

	f, err := parseFilter(c)
	if err != nil {
		l.Warn("list_detections_failed", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	items, err := h.Store.List(ctx, f)
	if err != nil {
		l.Error("list_detections_failed", "status", http.StatusInternalServerError, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list detections")
	}
	return ok(c, http.StatusOK, items)
}

func (h *DetectionsHTTP) History(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "detections.history")

	gid := c.Param("g_id")
	items, err := h.Store.History(ctx, gid, util.ParseIntDefault(c.QueryParam("limit"), detections.DefaultLimit))
	if err != nil {
		l.Error("history_failed", "status", http.StatusInternalServerError, "g_id", gid, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot get history")
	}
	return ok(c, http.StatusOK, echo.Map{
		"g_id":       gid,
		"detections": items,
	})
}

func (h *DetectionsHTTP) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	st, err := h.Store.Stats(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("stats_failed", "handler", "detections.stats", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot get stats")
	}
	return ok(c, http.StatusOK, st)
}

func (h *DetectionsHTTP) Export(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "detections.export")

	f, err := parseFilter(c)
	if err != nil {
		l.Warn("export_failed", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if c.QueryParam("limit") == "" {
		f.Limit = detections.MaxLimit
	}

	var buf bytes.Buffer
	if err := h.Store.ExportCSV(ctx, &buf, f); err != nil {
		l.Error("export_failed", "status", http.StatusInternalServerError, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot export detections")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="detections.csv"`)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
