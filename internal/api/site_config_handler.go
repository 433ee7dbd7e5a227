package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio/internal/content"
)

const siteConfigCacheKey = "site-config"

// SiteConfigHandler 管理单例站点配置。
type SiteConfigHandler struct {
	store *content.SiteConfigStore
	cache *ReadCache
	blobs blobDeleter
}

// NewSiteConfigHandler 构造处理器。
func NewSiteConfigHandler(store *content.SiteConfigStore, cache *ReadCache, blobs blobDeleter) *SiteConfigHandler {
	return &SiteConfigHandler{store: store, cache: cache, blobs: blobs}
}

// Get 返回配置；尚未创建时返回 {}。
func (h *SiteConfigHandler) Get(c *gin.Context) {
	if cached, ok := h.cache.get(siteConfigCacheKey); ok {
		c.JSON(http.StatusOK, cached)
		return
	}
	cfg, err := h.store.Get(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	var body any = gin.H{}
	if cfg != nil {
		body = cfg
	}
	h.cache.set(siteConfigCacheKey, body)
	c.JSON(http.StatusOK, body)
}

// Create 初始化配置，已存在时返回 409。
func (h *SiteConfigHandler) Create(c *gin.Context) {
	var input content.SiteConfigInput
	if !bindJSON(c, &input) {
		return
	}
	if err := input.Validate(); err != nil {
		writeError(c, err)
		return
	}
	cfg := input.Model()
	if err := h.store.Create(c.Request.Context(), &cfg); err != nil {
		writeError(c, err)
		return
	}
	h.cache.Invalidate(siteConfigCacheKey)
	c.JSON(http.StatusCreated, cfg)
}

// Update 修改现存配置，路径中的 id 只为兼容保留。
// 更换简历文件后旧文件会被删除。
func (h *SiteConfigHandler) Update(c *gin.Context) {
	var input content.SiteConfigInput
	if !bindJSON(c, &input) {
		return
	}
	if err := input.Validate(); err != nil {
		writeError(c, err)
		return
	}
	updated, previous, err := h.store.Update(c.Request.Context(), input.Updates())
	if err != nil {
		writeError(c, err)
		return
	}
	h.cache.Invalidate(siteConfigCacheKey)
	if previous.CVPathname != updated.CVPathname {
		deleteReplacedBlob(c, h.blobs, previous.CVPathname)
	}
	c.JSON(http.StatusOK, updated)
}

// Delete 删除现存配置。
func (h *SiteConfigHandler) Delete(c *gin.Context) {
	deleted, err := h.store.Delete(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	h.cache.Invalidate(siteConfigCacheKey)
	c.JSON(http.StatusOK, deleted)
}
