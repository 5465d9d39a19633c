package router

import (
	"net/http"
	"strings"

	"dianping/internal/middleware"
	"dianping/internal/model"
	"dianping/internal/service"
	"dianping/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// sendCode POST /user/code?phone=
func sendCode(users *service.UserService, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := users.SendCode(c.Request.Context(), strings.TrimSpace(c.Query("phone")))
		respond(c, log, nil, err)
	}
}

type loginForm struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// userLogin 登录成功返回 token，前端放到 authorization 请求头里。
func userLogin(users *service.UserService, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var form loginForm
		if err := c.ShouldBindJSON(&form); err != nil {
			c.JSON(http.StatusOK, model.Fail("请求参数错误"))
			return
		}
		token, err := users.Login(c.Request.Context(), strings.TrimSpace(form.Phone), strings.TrimSpace(form.Code))
		respond(c, log, token, err)
	}
}

func me() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := session.Current(c.Request.Context())
		c.JSON(http.StatusOK, model.Ok(p))
	}
}

func logout(users *service.UserService, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(middleware.HeaderToken))
		respond(c, log, nil, users.Logout(c.Request.Context(), token))
	}
}
