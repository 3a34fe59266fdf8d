package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
	"github.com/proctorhq/examhall-backend/internal/config"
	"github.com/proctorhq/examhall-backend/internal/database"
	"github.com/proctorhq/examhall-backend/internal/logger"
	"github.com/proctorhq/examhall-backend/internal/model"
	"github.com/proctorhq/examhall-backend/internal/repository"
)

// Seeds a demo data set: 20 candidates (password "candidate1" etc.) and one
// scheduled exam with five questions. Safe to rerun — existing rows are
// skipped.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	candidateRepo := repository.NewCandidateRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)

	fmt.Println("=== Seeding Demo Data ===")

	// ─── Admin ─────────────────────────────────────────────────────────
	adminID := 0
	if existing, err := adminRepo.GetByEmail(ctx, "admin@examhall.local"); err == nil {
		adminID = existing.ID
		fmt.Printf("Found existing admin with ID: %d\n", adminID)
	} else {
		hash, _ := bcrypt.GenerateFromPassword([]byte("admin123"), cfg.BcryptCost)
		admin := &model.Admin{
			Name:         "Seed Admin",
			Email:        "admin@examhall.local",
			PasswordHash: string(hash),
		}
		if err := adminRepo.Create(ctx, admin); err != nil {
			log.Fatal().Err(err).Msg("Failed to create admin")
		}
		adminID = admin.ID
		fmt.Printf("Created admin with ID: %d\n", adminID)
	}

	// ─── Candidates ────────────────────────────────────────────────────
	names := []string{
		"Budi Santoso", "Siti Aminah", "Andi Pratama", "Rina Wati", "Joko Susilo",
		"Ayu Lestari", "Dodi Kusuma", "Eka Putri", "Fahri Hamzah", "Gita Savitri",
		"Hendra Gunawan", "Ika Sari", "Jamal Mirdad", "Kiki Fatmala", "Lukman Hakim",
		"Maya Septiana", "Nanda Pratama", "Oki Setiana", "Putri Dian", "Qori Maharani",
	}

	successCount := 0
	for i, name := range names {
		email := fmt.Sprintf("candidate%d@examhall.local", i+1)
		if _, err := candidateRepo.GetByEmail(ctx, email); err == nil {
			continue // already seeded
		}

		hash, _ := bcrypt.GenerateFromPassword([]byte(fmt.Sprintf("candidate%d", i+1)), cfg.BcryptCost)
		candidate := &model.Candidate{
			Name:         name,
			Email:        email,
			IDCard:       fmt.Sprintf("ID%05d", i+1),
			Status:       model.CandidateStatusActive,
			PasswordHash: string(hash),
		}
		if err := candidateRepo.Create(ctx, candidate); err != nil {
			log.Error().Err(err).Str("email", email).Msg("Failed to create candidate")
			continue
		}
		successCount++
	}
	fmt.Printf("Created %d candidates\n", successCount)

	// ─── Sample Exam ───────────────────────────────────────────────────
	var examID string
	err = pool.QueryRow(ctx, "SELECT id FROM exams WHERE code = $1", "DEMO101").Scan(&examID)
	if err == nil {
		fmt.Printf("Found existing exam: %s\n", examID)
		return
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		log.Fatal().Err(err).Msg("Failed to check existing exam")
	}

	exam := &model.Exam{
		Title:        "General Knowledge Demo",
		Code:         "DEMO101",
		Department:   "Demo",
		Instructor:   "Seed Admin",
		Description:  "A five-question demo exam for smoke testing.",
		DurationMins: 30,
		PassScore:    60,
		Status:       model.ExamStatusDraft,
		AuthorID:     adminID,
	}
	if err := examRepo.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	fmt.Printf("Created exam with ID: %s\n", exam.ID)

	questions := []struct {
		text    string
		options []model.Option
		correct string
		marks   int
	}{
		{"What is the capital of France?", opts("Berlin", "Paris", "Madrid", "Rome"), "b", 2},
		{"2 + 2 * 2 = ?", opts("6", "8", "4", "2"), "a", 1},
		{"Which planet is known as the Red Planet?", opts("Venus", "Jupiter", "Mars", "Saturn"), "c", 2},
		{"Water boils at what temperature at sea level?", opts("90C", "95C", "100C", "110C"), "c", 1},
		{"Who wrote 'Romeo and Juliet'?", opts("Dickens", "Shakespeare", "Austen", "Tolstoy"), "b", 2},
	}

	totalMarks := 0
	for i, item := range questions {
		q := &model.Question{
			ExamID:          exam.ID,
			Text:            item.text,
			Options:         item.options,
			CorrectOptionID: item.correct,
			Marks:           item.marks,
			Position:        i,
		}
		if err := questionRepo.Create(ctx, q); err != nil {
			log.Fatal().Err(err).Int("position", i).Msg("Failed to create question")
		}
		totalMarks += item.marks
	}
	if err := examRepo.UpdateTotalMarks(ctx, exam.ID, totalMarks); err != nil {
		log.Fatal().Err(err).Msg("Failed to update total marks")
	}
	fmt.Printf("Created %d questions (%d marks)\n", len(questions), totalMarks)
	fmt.Println("Done. Schedule the exam via the admin API to make it startable.")
}

func opts(texts ...string) []model.Option {
	ids := []string{"a", "b", "c", "d"}
	out := make([]model.Option, 0, len(texts))
	for i, t := range texts {
		out = append(out, model.Option{ID: ids[i], Text: t})
	}
	return out
}
