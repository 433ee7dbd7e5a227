package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio/internal/api/middleware"
	"portfolio/internal/content"
	"portfolio/internal/database"
	"portfolio/internal/storage"
)

// blobDeleter 删除不再被引用的上传文件。
type blobDeleter interface {
	DeleteObject(ctx context.Context, objectKey string) error
}

// OrderedHandler 为一种可排序的内容资源提供 REST 接口。
type OrderedHandler[T any, PT interface {
	*T
	database.Sortable
}] struct {
	store    *content.OrderedStore[T, PT]
	newInput func() content.Input[T]
	cache    *ReadCache
	blobs    blobDeleter
	pathname func(*T) string
}

// NewOrderedHandler 构造资源处理器。pathname 返回条目引用的上传文件，没有附件的资源传 nil。
func NewOrderedHandler[T any, PT interface {
	*T
	database.Sortable
}](
	store *content.OrderedStore[T, PT],
	newInput func() content.Input[T],
	cache *ReadCache,
	blobs blobDeleter,
	pathname func(*T) string,
) *OrderedHandler[T, PT] {
	return &OrderedHandler[T, PT]{
		store:    store,
		newInput: newInput,
		cache:    cache,
		blobs:    blobs,
		pathname: pathname,
	}
}

// List 返回按 order 升序的全部条目。
func (h *OrderedHandler[T, PT]) List(c *gin.Context) {
	if cached, ok := h.cache.get(h.store.Name()); ok {
		c.JSON(http.StatusOK, cached)
		return
	}
	items, err := h.store.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	h.cache.set(h.store.Name(), items)
	c.JSON(http.StatusOK, items)
}

// Get 返回单个条目。
func (h *OrderedHandler[T, PT]) Get(c *gin.Context) {
	item, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// Create 新建条目，未指定 order 时追加到末尾。
func (h *OrderedHandler[T, PT]) Create(c *gin.Context) {
	input := h.newInput()
	if !bindJSON(c, input) {
		return
	}
	if err := input.Validate(true); err != nil {
		writeError(c, err)
		return
	}

	item := input.Model()
	if err := h.store.Create(c.Request.Context(), &item, input.ExplicitOrder()); err != nil {
		writeError(c, err)
		return
	}
	h.cache.Invalidate(h.store.Name())
	c.JSON(http.StatusCreated, item)
}

// Update 只修改请求体中出现的字段。
func (h *OrderedHandler[T, PT]) Update(c *gin.Context) {
	input := h.newInput()
	if !bindJSON(c, input) {
		return
	}
	if err := input.Validate(false); err != nil {
		writeError(c, err)
		return
	}

	updated, previous, err := h.store.Update(c.Request.Context(), c.Param("id"), input.Updates())
	if err != nil {
		writeError(c, err)
		return
	}
	h.cache.Invalidate(h.store.Name())
	if h.pathname != nil && h.pathname(previous) != h.pathname(updated) {
		h.deleteBlob(c, h.pathname(previous))
	}
	c.JSON(http.StatusOK, updated)
}

// Delete 删除条目，剩余条目不重新编号。
func (h *OrderedHandler[T, PT]) Delete(c *gin.Context) {
	deleted, err := h.store.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	h.cache.Invalidate(h.store.Name())
	if h.pathname != nil {
		h.deleteBlob(c, h.pathname(deleted))
	}
	c.JSON(http.StatusOK, deleted)
}

// reorderBody 同时接受 {"items":[...]} 与裸数组两种写法。
type reorderBody []content.OrderUpdate

func (r *reorderBody) UnmarshalJSON(data []byte) error {
	var list []content.OrderUpdate
	if err := json.Unmarshal(data, &list); err == nil {
		*r = list
		return nil
	}
	var wrapped struct {
		Items []content.OrderUpdate `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*r = wrapped.Items
	return nil
}

// Reorder 在一个事务中写入拖拽排序结果并返回新的列表。
func (h *OrderedHandler[T, PT]) Reorder(c *gin.Context) {
	var body reorderBody
	if !bindJSON(c, &body) {
		return
	}
	items, err := h.store.Reorder(c.Request.Context(), body)
	if err != nil {
		writeError(c, err)
		return
	}
	h.cache.Invalidate(h.store.Name())
	c.JSON(http.StatusOK, items)
}

// deleteBlob 尽力删除旧文件，失败只记录日志。
func (h *OrderedHandler[T, PT]) deleteBlob(c *gin.Context, pathname string) {
	deleteReplacedBlob(c, h.blobs, pathname)
}

func deleteReplacedBlob(c *gin.Context, blobs blobDeleter, pathname string) {
	if blobs == nil || storage.ValidatePathname(pathname) != nil {
		return
	}
	if err := blobs.DeleteObject(c.Request.Context(), pathname); err != nil {
		middleware.LoggerFromContext(c).Warn("delete replaced blob failed",
			slog.String("pathname", pathname),
			slog.Any("error", err),
		)
	}
}
