package service

import (
	"context"
	"errors"
	"strconv"

	"dianping/internal/model"
	"dianping/internal/session"
	kv "dianping/pkg/redis"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BlogService 探店笔记与点赞。点赞用户集合放在 blog:liked:{id}。
type BlogService struct {
	db    *gorm.DB
	kv    *kv.KV
	users *UserService
	log   logrus.FieldLogger
}

func NewBlogService(db *gorm.DB, store *kv.KV, users *UserService, log logrus.FieldLogger) *BlogService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BlogService{db: db, kv: store, users: users, log: log.WithField("service", "blog")}
}

// QueryByID 查询笔记，附带作者信息和当前用户是否点过赞。
func (s *BlogService) QueryByID(ctx context.Context, id int64) (*model.Blog, error) {
	var blog model.Blog
	err := s.db.WithContext(ctx).First(&blog, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBlogNotFound
	}
	if err != nil {
		return nil, transient(err)
	}

	author, err := s.users.Get(ctx, blog.UserID)
	if err != nil {
		return nil, err
	}
	if author != nil {
		blog.Name = author.NickName
		blog.Icon = author.Icon
	}

	// 匿名访问时 isLike 恒为 false
	if p, ok := session.Current(ctx); ok {
		liked, err := s.kv.SIsMember(ctx, kv.BlogLikedKeyOf(id), strconv.FormatInt(p.ID, 10))
		if err != nil {
			s.log.WithError(err).WithField("blogId", id).Warn("check liked failed")
		}
		blog.IsLike = liked
	}
	return &blog, nil
}

// Like 点赞或取消点赞，返回操作后是否处于已点赞状态。
func (s *BlogService) Like(ctx context.Context, id int64) (bool, error) {
	p, ok := session.Current(ctx)
	if !ok {
		return false, ErrUnauthorized
	}
	ctx = context.WithoutCancel(ctx)
	key := kv.BlogLikedKeyOf(id)
	member := strconv.FormatInt(p.ID, 10)

	liked, err := s.kv.SIsMember(ctx, key, member)
	if err != nil {
		return false, transient(err)
	}

	// 以集合变更为准：并发的同向操作里只有真正改动集合的那一次才更新点赞数
	toggle, undo, expr := s.kv.SAdd, s.kv.SRem, "liked + 1"
	if liked {
		toggle, undo, expr = s.kv.SRem, s.kv.SAdd, "liked - 1"
	}
	changed, err := toggle(ctx, key, member)
	if err != nil {
		return liked, transient(err)
	}
	if changed == 0 {
		return !liked, nil
	}

	res := s.db.WithContext(ctx).Model(&model.Blog{}).Where("id = ?", id).
		UpdateColumn("liked", gorm.Expr(expr))
	if res.Error == nil && res.RowsAffected > 0 {
		return !liked, nil
	}
	if _, err := undo(ctx, key, member); err != nil {
		s.log.WithError(err).WithField("blogId", id).Error("rollback like set failed")
	}
	if res.Error != nil {
		return liked, transient(res.Error)
	}
	return liked, ErrBlogNotFound
}
