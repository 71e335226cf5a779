package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sudooom.im.sync/internal/handler"
)

// Options 路由可选组件
type Options struct {
	Mode    string
	Health  http.Handler
	Ready   http.Handler
	Metrics http.Handler
}

// SetupRouter 设置路由
func SetupRouter(syncHandler *handler.SyncHandler, opts Options) *gin.Engine {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())

	// 运维接口
	if opts.Health != nil {
		r.GET("/health", gin.WrapH(opts.Health))
	}
	if opts.Ready != nil {
		r.GET("/ready", gin.WrapH(opts.Ready))
	}
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	// API v1
	v1 := r.Group("/api/v1")
	{
		v1.GET("/snapshot", syncHandler.Snapshot)
		v1.GET("/stats", syncHandler.Stats)
		v1.GET("/online", syncHandler.ListOnline)

		// 频道接口
		channels := v1.Group("/channels")
		{
			channels.GET("", syncHandler.ListChannels)
			channels.GET("/:id/messages", syncHandler.ListMessages)
			channels.GET("/:id/typing", syncHandler.ListTyping)
			channels.POST("/:id/select", syncHandler.SelectChannel)
			channels.POST("/:id/pages", syncHandler.FetchPage)
			channels.POST("/:id/messages", syncHandler.SendMessage)
			channels.POST("/:id/typing", syncHandler.Typing)
			channels.POST("/:id/unread", syncHandler.CorrectUnread)
			channels.POST("/:id/messages/:messageId/trash", syncHandler.TrashMessage)
		}

		// 发送重试
		v1.POST("/outbox/:clientId/retry", syncHandler.RetrySend)

		// 回收站接口
		trash := v1.Group("/trash")
		{
			trash.GET("", syncHandler.ListTrash)
			trash.GET("/expiring", syncHandler.ExpiringSoon)
			trash.POST("/:messageId/restore", syncHandler.RestoreMessage)
			trash.DELETE("/:messageId", syncHandler.DeleteMessage)
		}

		// 通知接口
		notifications := v1.Group("/notifications")
		{
			notifications.GET("", syncHandler.ListNotifications)
			notifications.DELETE("", syncHandler.ClearNotifications)
			notifications.DELETE("/:notificationId", syncHandler.RemoveNotification)
		}
	}

	return r
}
