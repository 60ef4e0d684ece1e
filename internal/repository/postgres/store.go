package postgres

import (
	"context"
	"time"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/repository"
	"e2e_relay/internal/utils/log"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

var _ repository.Store = (*Store)(nil)

// Open connects to dsn and pings it within ctx.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger: logger.New(zap.NewStdLog(log.L()), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, apperr.Infrastructure("connect postgres", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperr.Infrastructure("connect postgres", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, apperr.Infrastructure("ping postgres", err)
	}

	log.Info("connected to postgres")
	return New(db), nil
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Users() repository.UserRepository           { return &userRepo{db: s.db} }
func (s *Store) Prekeys() repository.PrekeyRepository       { return &prekeyRepo{db: s.db} }
func (s *Store) Contacts() repository.ContactRepository     { return &contactRepo{db: s.db} }
func (s *Store) Ephemerals() repository.EphemeralRepository { return &ephemeralRepo{db: s.db} }
func (s *Store) Messages() repository.MessageRepository     { return &messageRepo{db: s.db} }

func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&userRow{},
		&prekeyRow{},
		&contactRow{},
		&ephemeralRow{},
		&messageRow{},
	)
	return apperr.Infrastructure("migrate", err)
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperr.Infrastructure("close postgres", err)
	}
	return apperr.Infrastructure("close postgres", sqlDB.Close())
}
