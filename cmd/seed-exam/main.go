package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/database"
	"github.com/stemsi/exstem-engine/internal/logger"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/session"
)

// examFile is the JSON layout accepted by seed-exam.
type examFile struct {
	Exam      model.Exam       `json:"exam"`
	Questions []model.Question `json:"questions"`
}

// Usage: seed-exam [exam.json]
// Without a file the built-in practice set is seeded as a demo exam.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	seed := examFile{
		Exam:      model.Exam{Title: "Latihan Demo", Subject: "Umum", DurationMinutes: cfg.DefaultExamMinutes},
		Questions: session.FallbackQuestions(),
	}
	if len(os.Args) > 1 {
		data, err := os.ReadFile(os.Args[1])
		if err != nil {
			log.Fatal().Err(err).Str("file", os.Args[1]).Msg("Failed to read exam file")
		}
		if err := json.Unmarshal(data, &seed); err != nil {
			log.Fatal().Err(err).Msg("Failed to parse exam file")
		}
	}

	if len(seed.Questions) == 0 {
		log.Fatal().Msg("Exam has no questions")
	}
	if seed.Exam.DurationMinutes <= 0 {
		seed.Exam.DurationMinutes = cfg.DefaultExamMinutes
	}
	for i := range seed.Questions {
		q := &seed.Questions[i]
		if uuid.Validate(q.ID) != nil {
			q.ID = uuid.NewString()
		}
		if q.Number == 0 {
			q.Number = i + 1
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)
	if err := examRepo.Create(ctx, &seed.Exam, seed.Questions); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed exam")
	}
	fmt.Printf("Seeded exam %q (%s) with %d questions.\n", seed.Exam.Title, seed.Exam.ID, len(seed.Questions))

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, skipping cache warm")
		return
	}
	defer rdb.Close()

	examService := service.NewExamService(examRepo, repository.NewQuestionRepository(pool), rdb, cfg.QuestionCacheTTL, log)
	if err := examService.WarmExamCache(ctx, seed.Exam.ID); err != nil {
		log.Warn().Err(err).Msg("Cache warm failed")
		return
	}
	fmt.Println("Question cache warmed.")
}
