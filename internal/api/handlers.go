// internal/api/handlers.go
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/services"
	"github.com/yzy0324/neon-tape-vn/internal/storage"
	"github.com/yzy0324/neon-tape-vn/internal/utils"
)

// Handler 处理API请求
type Handler struct {
	Sessions         *services.SessionService // 活动运行
	Saves            *services.SaveService    // 存档槽
	Story            *services.StoryService   // 剧情信息与结局档案
	Stats            *services.StatsService   // 游玩统计，可为空
	WebSocketHandler *WebSocketHandler        // WebSocket 处理器
	Response         *ResponseHelper          // 响应助手
}

// StartRunRequest 开局请求
type StartRunRequest struct {
	Profile string `json:"profile"`
}

// ChooseRequest 选择请求，index 从 0 开始
type ChooseRequest struct {
	Index *int `json:"index" binding:"required"`
}

// ImportRequest 导入存档文本
type ImportRequest struct {
	Text string `json:"text" binding:"required"`
}

// RunResponse 开局结果
type RunResponse struct {
	Run  *services.RunSession `json:"run"`
	View interface{}          `json:"view"`
}

// bindOptionalJSON 允许空请求体
func bindOptionalJSON(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// StartRun 为档案开启新运行
func (h *Handler) StartRun(c *gin.Context) {
	var req StartRunRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.Response.BadRequest(c, "请求参数错误", err.Error())
		return
	}

	sess, view, err := h.Sessions.Start(req.Profile)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Created(c, &RunResponse{Run: sess, View: view}, "运行已开始")
}

// GetRun 当前画面（场景、选项、预测）
func (h *Handler) GetRun(c *gin.Context) {
	view, err := h.Sessions.Current(c.Param("id"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, view)
}

// CloseRun 结束运行
func (h *Handler) CloseRun(c *gin.Context) {
	if err := h.Sessions.Close(c.Param("id")); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, nil, "运行已结束")
}

// RestartRun 放弃当前进度，从标题重新开始
func (h *Handler) RestartRun(c *gin.Context) {
	view, err := h.Sessions.Restart(c.Param("id"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, view, "已重新开始")
}

// Choose 选择当前场景的一个选项
func (h *Handler) Choose(c *gin.Context) {
	var req ChooseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorChoiceInvalid, "请求参数错误", err.Error())
		return
	}

	view, err := h.Sessions.Choose(c.Param("id"), *req.Index)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, view)
}

// SaveOrderDraft 保存点单草稿
func (h *Handler) SaveOrderDraft(c *gin.Context) {
	var draft models.OrderDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		h.Response.BadRequest(c, "请求参数错误", err.Error())
		return
	}

	saved, err := h.Sessions.SaveDraft(c.Param("id"), draft)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, saved, "草稿已保存")
}

// SubmitOrder 提交订单并按规则推进
func (h *Handler) SubmitOrder(c *gin.Context) {
	var draft models.OrderDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		h.Response.BadRequest(c, "请求参数错误", err.Error())
		return
	}

	view, err := h.Sessions.SubmitOrder(c.Param("id"), draft)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, view, "订单已送出")
}

// GetForecast 结局倾向预测
func (h *Handler) GetForecast(c *gin.Context) {
	fc, err := h.Sessions.Forecast(c.Param("id"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, fc)
}

// GetHistory 对白历史，limit 缺省或超过配置窗口时按配置窗口返回，低于下限时按下限返回
func (h *Handler) GetHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.Response.BadRequest(c, "limit 必须是非负整数")
			return
		}
		limit = parsed
	}

	entries, err := h.Sessions.History(c.Param("id"), limit)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, entries)
}

// GetReview 完整路径回顾
func (h *Handler) GetReview(c *gin.Context) {
	steps, err := h.Sessions.Review(c.Param("id"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, steps)
}

// GetPlayback 某一步的只读回放
func (h *Handler) GetPlayback(c *gin.Context) {
	step, err := strconv.Atoi(c.Param("step"))
	if err != nil {
		h.Response.BadRequest(c, "步骤必须是整数")
		return
	}

	frame, err := h.Sessions.Playback(c.Param("id"), step)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, frame)
}

// UpdateAudio 保存音频设置块
func (h *Handler) UpdateAudio(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.Response.BadRequest(c, "读取请求体失败", err.Error())
		return
	}

	settings, err := h.Sessions.SetAudio(c.Param("id"), raw)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, settings, "音频设置已保存")
}

// ListSaves 槽位摘要
func (h *Handler) ListSaves(c *gin.Context) {
	summaries, err := h.Saves.Summaries(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, summaries)
}

// SaveSlot 手动存档
func (h *Handler) SaveSlot(c *gin.Context) {
	summary, err := h.Saves.Save(c.Request.Context(), c.Param("id"), c.Param("slot"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, summary, "已存档")
}

// LoadSlot 读档，整体替换当前运行状态
func (h *Handler) LoadSlot(c *gin.Context) {
	view, err := h.Saves.Load(c.Request.Context(), c.Param("id"), c.Param("slot"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, view, "已读档")
}

// ExportSlot 以文本形式导出槽位
func (h *Handler) ExportSlot(c *gin.Context) {
	slot := c.Param("slot")
	text, err := h.Saves.Export(c.Request.Context(), c.Param("id"), slot)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	if c.Query("format") == "text" {
		h.Response.TextResponse(c, text, "neon-tape-"+slot+".txt")
		return
	}
	h.Response.Success(c, gin.H{"slot": slot, "text": text})
}

// ImportSlot 校验导入文本并写入槽位
func (h *Handler) ImportSlot(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数错误", err.Error())
		return
	}

	summary, err := h.Saves.Import(c.Request.Context(), c.Param("id"), c.Param("slot"), req.Text)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, summary, "导入成功")
}

// DeleteSlot 清空手动槽位
func (h *Handler) DeleteSlot(c *gin.Context) {
	if err := h.Saves.Delete(c.Request.Context(), c.Param("id"), c.Param("slot")); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, nil, "槽位已清空")
}

// GetEndings 档案的结局收集情况
func (h *Handler) GetEndings(c *gin.Context) {
	profile := c.DefaultQuery("profile", storage.DefaultProfile)
	archive, err := h.Story.Endings(c.Request.Context(), profile)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, archive)
}

// GetStory 剧情概况
func (h *Handler) GetStory(c *gin.Context) {
	h.Response.Success(c, h.Story.Overview())
}

// ValidateStory 对当前剧情运行离线校验
func (h *Handler) ValidateStory(c *gin.Context) {
	report := h.Story.Validate()
	if !report.OK() {
		c.JSON(http.StatusUnprocessableEntity, &APIResponse{
			Success:   false,
			Data:      report,
			Error:     &APIError{Code: ErrorAuthoring, Message: "剧情校验未通过"},
			Timestamp: time.Now(),
			RequestID: c.GetString(requestIDKey),
		})
		return
	}
	h.Response.Success(c, report, "剧情校验通过")
}

// GetMetrics 运行指标快照
func (h *Handler) GetMetrics(c *gin.Context) {
	metrics := utils.GetMetricsCollector().GetMetrics()
	metrics["active_sessions"] = h.Sessions.Count()
	if h.WebSocketHandler != nil {
		metrics["websocket"] = h.WebSocketHandler.hub.GetStatus()
	}
	h.Response.Success(c, metrics)
}

// GetStats 累计游玩统计
func (h *Handler) GetStats(c *gin.Context) {
	if h.Stats == nil {
		h.Response.NotFound(c, "统计")
		return
	}
	h.Response.Success(c, h.Stats.GetPlayStats())
}
