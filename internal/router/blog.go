package router

import (
	"dianping/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func queryBlog(blogs *service.BlogService, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		blog, err := blogs.QueryByID(c.Request.Context(), id)
		respond(c, log, blog, err)
	}
}

func likeBlog(blogs *service.BlogService, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		liked, err := blogs.Like(c.Request.Context(), id)
		respond(c, log, gin.H{"isLike": liked}, err)
	}
}
