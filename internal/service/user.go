package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"dianping/internal/database"
	"dianping/internal/model"
	"dianping/internal/session"
	kv "dianping/pkg/redis"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var phoneRegex = regexp.MustCompile(`^1([38][0-9]|4[579]|5[0-3,5-9]|6[6]|7[0135678]|9[89])\d{8}$`)

const nickNamePrefix = "user_"

type UserService struct {
	db       *gorm.DB
	kv       *kv.KV
	sessions *session.Store
	log      logrus.FieldLogger
}

func NewUserService(db *gorm.DB, store *kv.KV, sessions *session.Store, log logrus.FieldLogger) *UserService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &UserService{db: db, kv: store, sessions: sessions, log: log.WithField("service", "user")}
}

func ValidPhone(phone string) bool { return phoneRegex.MatchString(phone) }

// SendCode 生成 6 位验证码，2 分钟有效。短信通道未接入，验证码打到日志里。
func (s *UserService) SendCode(ctx context.Context, phone string) error {
	if !ValidPhone(phone) {
		return ErrInvalidPhone
	}
	code, err := randomDigits(6)
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	if err := s.kv.Set(ctx, kv.LoginCodeKeyOf(phone), code, kv.LoginCodeTTL); err != nil {
		return transient(err)
	}
	s.log.WithFields(logrus.Fields{"phone": phone, "code": code}).Info("verification code sent")
	return nil
}

// Login 校验验证码，用户不存在则注册，返回会话令牌。
func (s *UserService) Login(ctx context.Context, phone, code string) (string, error) {
	if !ValidPhone(phone) {
		return "", ErrInvalidPhone
	}
	ctx = context.WithoutCancel(ctx)

	codeKey := kv.LoginCodeKeyOf(phone)
	cached, ok, err := s.kv.Get(ctx, codeKey)
	if err != nil {
		return "", transient(err)
	}
	if !ok || code == "" || cached != code {
		return "", ErrInvalidCode
	}

	user, err := s.findOrCreate(ctx, phone)
	if err != nil {
		return "", err
	}

	token, err := s.sessions.Create(ctx, session.Principal{ID: user.ID, NickName: user.NickName, Icon: user.Icon})
	if err != nil {
		return "", transient(err)
	}
	// 验证码只能用一次
	if err := s.kv.Del(ctx, codeKey); err != nil {
		s.log.WithError(err).WithField("phone", phone).Warn("consume login code failed")
	}
	return token, nil
}

func (s *UserService) findOrCreate(ctx context.Context, phone string) (*model.User, error) {
	db := s.db.WithContext(ctx)
	var user model.User
	err := db.Where("phone = ?", phone).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, transient(err)
	}

	suffix, err := randomString(10)
	if err != nil {
		return nil, fmt.Errorf("generate nickname: %w", err)
	}
	user = model.User{Phone: phone, NickName: nickNamePrefix + suffix}
	if err := db.Create(&user).Error; err != nil {
		if !database.IsUniqueViolation(err) {
			return nil, transient(err)
		}
		// 并发注册，以先写入的为准
		user = model.User{}
		if err := db.Where("phone = ?", phone).First(&user).Error; err != nil {
			return nil, transient(err)
		}
	}
	return &user, nil
}

// Logout 删除会话，令牌立即失效。
func (s *UserService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Delete(ctx, token); err != nil {
		return transient(err)
	}
	return nil
}

// Get 按 id 查用户，不存在返回 nil。
func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, transient(err)
	}
	return &user, nil
}

func randomDigits(n int) (string, error) {
	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v), nil
}

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomString(n int) (string, error) {
	b := make([]byte, n)
	limit := big.NewInt(int64(len(alphabet)))
	for i := range b {
		v, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[v.Int64()]
	}
	return string(b), nil
}
