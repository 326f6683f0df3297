package server

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Napageneral/journai/internal/aggregate"
	"github.com/Napageneral/journai/internal/apierr"
	"github.com/Napageneral/journai/internal/bus"
	"github.com/Napageneral/journai/internal/emotion"
	"github.com/Napageneral/journai/internal/journal"
)

func (h *handlers) startJournaling(c *gin.Context) {
	scope, err := h.journal.Today(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "Journaling session started", "session_id": scope.SessionID})
}

func (h *handlers) chat(c *gin.Context) {
	var in journal.ChatInput
	if !bind(c, "chat", &in) {
		return
	}
	ctx := c.Request.Context()
	scope, err := h.journal.Today(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	reply, err := h.journal.Chat(ctx, scope, in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, reply)
}

func (h *handlers) history(c *gin.Context) {
	entryID, ok := queryID(c, "history", "entry_id")
	if !ok {
		return
	}
	e, err := h.journal.History(c.Request.Context(), entryID)
	if err != nil {
		respondError(c, err)
		return
	}
	var id *int64
	if e.ID != 0 {
		id = &e.ID
	}
	respondOK(c, gin.H{"entry_id": id, "history": e.Messages})
}

type entryBody struct {
	EntryID *int64 `json:"entry_id"`
}

func (h *handlers) endEntry(c *gin.Context) {
	const op = "end entry"
	var body entryBody
	if !bind(c, op, &body) {
		return
	}
	if body.EntryID == nil {
		respondError(c, apierr.Validation(op, "no entry_id provided to link metrics"))
		return
	}
	ctx := c.Request.Context()
	scope, err := h.journal.Today(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	n, err := h.journal.EndEntry(ctx, scope, *body.EntryID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"entry_id": *body.EntryID, "linked_metrics": n})
}

func (h *handlers) listEntries(c *gin.Context) {
	entries, err := h.journal.ListEntries(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, entries)
}

func (h *handlers) deleteEntry(c *gin.Context) {
	id, ok := pathID(c, "delete entry", "id")
	if !ok {
		return
	}
	if err := h.journal.DeleteEntry(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"status": "ok", "deleted_entry_id": id})
}

func (h *handlers) renameEntry(c *gin.Context) {
	const op = "rename entry"
	id, ok := pathID(c, op, "id")
	if !ok {
		return
	}
	var body struct {
		NewTitle string `json:"new_title"`
	}
	if !bind(c, op, &body) {
		return
	}
	if err := h.journal.RenameEntry(c.Request.Context(), id, body.NewTitle); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"status": "ok", "message": "Entry renamed successfully"})
}

func (h *handlers) requireEntryBody(c *gin.Context, op string) (int64, bool) {
	var body entryBody
	if !bind(c, op, &body) {
		return 0, false
	}
	if body.EntryID == nil {
		respondError(c, apierr.Validation(op, "entry_id is required"))
		return 0, false
	}
	return *body.EntryID, true
}

func (h *handlers) analyzeAll(c *gin.Context) {
	entryID, ok := h.requireEntryBody(c, "analyze entry")
	if !ok {
		return
	}
	report, err := h.runner.AnalyzeAll(c.Request.Context(), entryID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}

func (h *handlers) analyzeThemeRiver(c *gin.Context) {
	h.analyze(c, "themeriver")
}

func (h *handlers) analyzeOne(c *gin.Context) {
	h.analyze(c, c.Param("name"))
}

func (h *handlers) analyze(c *gin.Context, name string) {
	entryID, ok := h.requireEntryBody(c, "analyze "+name)
	if !ok {
		return
	}
	report, err := h.runner.Analyze(c.Request.Context(), entryID, name)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}

// filter reads entry_id, session_id, range, view and source from the query.
// An absent view falls back to def.
func filter(c *gin.Context, op string, def aggregate.View) (aggregate.Filter, bool) {
	var f aggregate.Filter
	var ok bool
	if f.EntryID, ok = queryID(c, op, "entry_id"); !ok {
		return f, false
	}
	if f.SessionID, ok = queryID(c, op, "session_id"); !ok {
		return f, false
	}
	f.View = def
	if raw, present := c.GetQuery("view"); present {
		v, err := aggregate.ParseView(raw)
		if err != nil {
			respondError(c, apierr.Validation(op, "%v", err))
			return f, false
		}
		f.View = v
	}
	if raw := c.Query("range"); raw != "" {
		w, err := aggregate.ParseRange(raw)
		if err != nil {
			respondError(c, apierr.Validation(op, "%v", err))
			return f, false
		}
		f.Range = &w
	}
	if raw := c.Query("source"); raw != "" {
		f.Source = emotion.Source(raw)
		if !f.Source.Valid() {
			respondError(c, apierr.Validation(op, "source must be ai or user, got %q", raw))
			return f, false
		}
	}
	return f, true
}

func (h *handlers) vaResults(c *gin.Context) {
	f, ok := filter(c, "va results", aggregate.ViewDay)
	if !ok {
		return
	}
	rows, err := h.agg.VA(c.Request.Context(), f)
	if err != nil {
		respondError(c, apierr.Storage("va results", err))
		return
	}
	respondOK(c, rows)
}

func (h *handlers) spiderResults(c *gin.Context) {
	f, ok := filter(c, "spider results", aggregate.ViewDay)
	if !ok {
		return
	}
	rows, err := h.agg.Spider(c.Request.Context(), f)
	if err != nil {
		respondError(c, apierr.Storage("spider results", err))
		return
	}
	respondOK(c, rows)
}

func (h *handlers) plutchikResults(c *gin.Context) {
	f, ok := filter(c, "plutchik results", aggregate.ViewDay)
	if !ok {
		return
	}
	rows, err := h.agg.PlutchikEvents(c.Request.Context(), f)
	if err != nil {
		respondError(c, apierr.Storage("plutchik results", err))
		return
	}
	respondOK(c, rows)
}

func (h *handlers) plutchikDyads(c *gin.Context) {
	f, ok := filter(c, "plutchik dyads", aggregate.ViewDay)
	if !ok {
		return
	}
	rows, err := h.agg.Dyads(c.Request.Context(), f)
	if err != nil {
		respondError(c, apierr.Storage("plutchik dyads", err))
		return
	}
	respondOK(c, rows)
}

func (h *handlers) themeRiver(c *gin.Context) {
	f, ok := filter(c, "themeriver", aggregate.ViewDay)
	if !ok {
		return
	}
	rows, err := h.agg.ThemeRiver(c.Request.Context(), f)
	if err != nil {
		respondError(c, apierr.Storage("themeriver", err))
		return
	}
	respondOK(c, rows)
}

func (h *handlers) activityHistogram(c *gin.Context) {
	f, ok := filter(c, "activity histogram", aggregate.ViewWeek)
	if !ok {
		return
	}
	days, err := h.agg.ActivityHistogram(c.Request.Context(), f)
	if err != nil {
		respondError(c, apierr.Storage("activity histogram", err))
		return
	}
	respondOK(c, days)
}

func (h *handlers) moodHistogram(c *gin.Context) {
	days, err := h.agg.MoodHistogram(c.Request.Context())
	if err != nil {
		respondError(c, apierr.Storage("mood histogram", err))
		return
	}
	respondOK(c, days)
}

func (h *handlers) submitMetric(c *gin.Context) {
	var in journal.MetricInput
	if !bind(c, "submit metric", &in) {
		return
	}
	ctx := c.Request.Context()
	scope, err := h.journal.Today(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	id, err := h.journal.SubmitMetric(ctx, scope, in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"status": "ok", "metric_id": id, "entry_id": in.EntryID})
}

func (h *handlers) submitMood(c *gin.Context) {
	var in journal.MoodInput
	if !bind(c, "submit mood", &in) {
		return
	}
	ctx := c.Request.Context()
	scope, err := h.journal.Today(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	n, err := h.journal.SubmitMood(ctx, scope, in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "Mood log saved", "stored": n})
}

func (h *handlers) manualPlutchik(c *gin.Context) {
	var body struct {
		Emotions []journal.ManualEmotion `json:"emotions"`
	}
	if !bind(c, "submit emotions", &body) {
		return
	}
	ctx := c.Request.Context()
	scope, err := h.journal.Today(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.journal.SubmitManualEmotions(ctx, scope, body.Emotions)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, res)
}

func (h *handlers) mergeActivities(c *gin.Context) {
	var body struct {
		Sources []string `json:"sources"`
		Target  string   `json:"target"`
	}
	if !bind(c, "merge activities", &body) {
		return
	}
	res, err := h.journal.MergeActivities(c.Request.Context(), body.Sources, body.Target)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, res)
}

func (h *handlers) events(c *gin.Context) {
	const op = "list events"
	after, err := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil || after < 0 {
		respondError(c, apierr.Validation(op, "invalid after %q", c.Query("after")))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		respondError(c, apierr.Validation(op, "limit must be between 1 and 1000"))
		return
	}
	events, err := bus.List(c.Request.Context(), h.db, after, limit)
	if err != nil {
		respondError(c, apierr.Storage(op, err))
		return
	}
	respondOK(c, events)
}
