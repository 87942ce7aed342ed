package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Seungwon-Robin/Chatbot/models"
)

type Question struct {
	ID               int      `json:"id"`
	Query            string   `json:"query"`
	ExpectedGenres   []string `json:"expected_genres"`
	RelevantKeywords []string `json:"relevant_keywords"`
	GroundTruth      string   `json:"ground_truth_answer,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

type EvaluationResult struct {
	QuestionID     int      `json:"question_id"`
	Query          string   `json:"query"`
	RetrievedSongs []string `json:"retrieved_songs"`
	RelevantSongs  int      `json:"relevant_songs"`
	GenreHit       bool     `json:"genre_hit"`
	ReciprocalRank float64  `json:"reciprocal_rank"`
	KeywordsFound  []string `json:"keywords_found"`
	KeywordRecall  float64  `json:"keyword_recall"`
	Answer         string   `json:"answer,omitempty"`
	FScore         float64  `json:"f_score,omitempty"`
	ResponseTimeMs int64    `json:"response_time_ms"`
	Error          string   `json:"error,omitempty"`

	keywordTargets int
}

type Metrics struct {
	TotalQuestions    int            `json:"total_questions"`
	SuccessfulQueries int            `json:"successful_queries"`
	FailedQueries     int            `json:"failed_queries"`
	GenreHitRate      float64        `json:"genre_hit_rate"`
	MeanRecipRank     float64        `json:"mean_reciprocal_rank"`
	AvgKeywordRecall  float64        `json:"avg_keyword_recall"`
	AvgResponseTime   float64        `json:"avg_response_time_ms"`
	AvgSongsRetrieved float64        `json:"avg_songs_retrieved"`
	AvgRelevantSongs  float64        `json:"avg_relevant_songs"`
	AvgFScore         float64        `json:"avg_f_score"`
	Timestamp         string         `json:"timestamp"`
	Configuration     map[string]any `json:"configuration"`
}

type EvaluationReport struct {
	Metrics Metrics            `json:"metrics"`
	Results []EvaluationResult `json:"results"`
}

// SongRetriever is satisfied by *services.Retriever.
type SongRetriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]models.SearchResult, error)
}

// Answerer is satisfied by *services.Chatbot.
type Answerer interface {
	GenerateResponse(ctx context.Context, query string) (string, error)
}

type Evaluator struct {
	retriever     SongRetriever
	answerer      Answerer
	topK          int
	configuration map[string]any
}

// NewEvaluator scores retrieval only when answerer is nil.
func NewEvaluator(retriever SongRetriever, answerer Answerer, topK int, configuration map[string]any) *Evaluator {
	if configuration == nil {
		configuration = map[string]any{}
	}
	return &Evaluator{
		retriever:     retriever,
		answerer:      answerer,
		topK:          topK,
		configuration: configuration,
	}
}

func LoadDataset(path string) ([]Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("dataset %s has no questions", path)
	}

	return questions, nil
}

func (e *Evaluator) Evaluate(ctx context.Context, questions []Question) (*EvaluationReport, error) {
	results := make([]EvaluationResult, 0, len(questions))

	fmt.Println("Starting evaluation...")
	fmt.Printf("Total questions: %d\n", len(questions))
	fmt.Println("---")

	for i, q := range questions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fmt.Printf("[%d/%d] Evaluating: %s\n", i+1, len(questions), q.Query)

		result := e.evaluateQuestion(ctx, q)
		if result.Error != "" {
			fmt.Printf("Failed: %s\n", result.Error)
		} else {
			fmt.Printf("Completed in %dms (relevant: %d/%d, RR: %.2f)\n",
				result.ResponseTimeMs, result.RelevantSongs, len(result.RetrievedSongs), result.ReciprocalRank)
		}
		results = append(results, result)
	}

	return &EvaluationReport{
		Metrics: e.aggregate(results),
		Results: results,
	}, nil
}

func (e *Evaluator) evaluateQuestion(ctx context.Context, q Question) EvaluationResult {
	result := EvaluationResult{QuestionID: q.ID, Query: q.Query}
	startTime := time.Now()

	searchResults, err := e.retriever.Retrieve(ctx, q.Query, e.topK)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.RetrievedSongs = make([]string, len(searchResults))
	for j, r := range searchResults {
		result.RetrievedSongs[j] = fmt.Sprintf("%s - %s (%s)", r.Song.Artist, r.Song.SongTitle, r.Song.Genre)
	}
	result.RelevantSongs, result.ReciprocalRank = rankGenres(q.ExpectedGenres, searchResults)
	result.GenreHit = result.RelevantSongs > 0
	result.KeywordsFound = checkKeywords(q.RelevantKeywords, searchResults)
	result.keywordTargets = len(q.RelevantKeywords)
	if result.keywordTargets > 0 {
		result.KeywordRecall = float64(len(result.KeywordsFound)) / float64(len(q.RelevantKeywords))
	}

	if e.answerer != nil {
		answer, err := e.answerer.GenerateResponse(ctx, q.Query)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.Answer = answer
		groundTruth := q.GroundTruth
		if groundTruth == "" {
			groundTruth = strings.Join(q.RelevantKeywords, " ")
		}
		result.FScore = CalculateFScore(answer, groundTruth, q.RelevantKeywords)
	}

	result.ResponseTimeMs = time.Since(startTime).Milliseconds()
	return result
}

func (e *Evaluator) aggregate(results []EvaluationResult) Metrics {
	m := Metrics{
		TotalQuestions: len(results),
		Timestamp:      time.Now().Format(time.RFC3339),
		Configuration:  e.configuration,
	}

	var totalTime int64
	var totalRetrieved, totalRelevant, withKeywords int
	var sumRR, sumRecall, sumF float64
	for _, r := range results {
		if r.Error != "" {
			m.FailedQueries++
			continue
		}
		if r.GenreHit {
			m.SuccessfulQueries++
		}
		totalTime += r.ResponseTimeMs
		totalRetrieved += len(r.RetrievedSongs)
		totalRelevant += r.RelevantSongs
		sumRR += r.ReciprocalRank
		sumF += r.FScore
		if r.keywordTargets > 0 {
			sumRecall += r.KeywordRecall
			withKeywords++
		}
	}

	// failed queries count against hit rate and MRR
	if m.TotalQuestions > 0 {
		m.GenreHitRate = float64(m.SuccessfulQueries) / float64(m.TotalQuestions)
		m.MeanRecipRank = sumRR / float64(m.TotalQuestions)
	}
	if answered := m.TotalQuestions - m.FailedQueries; answered > 0 {
		m.AvgResponseTime = float64(totalTime) / float64(answered)
		m.AvgSongsRetrieved = float64(totalRetrieved) / float64(answered)
		m.AvgRelevantSongs = float64(totalRelevant) / float64(answered)
		m.AvgFScore = sumF / float64(answered)
	}
	if withKeywords > 0 {
		m.AvgKeywordRecall = sumRecall / float64(withKeywords)
	}
	return m
}

// rankGenres counts results in an expected genre and returns the reciprocal
// rank of the first one.
func rankGenres(expected []string, results []models.SearchResult) (int, float64) {
	relevant := 0
	rr := 0.0
	for i, r := range results {
		if !genreMatches(r.Song.Genre, expected) {
			continue
		}
		relevant++
		if rr == 0 {
			rr = 1 / float64(i+1)
		}
	}
	return relevant, rr
}

func genreMatches(genre string, expected []string) bool {
	genre = strings.TrimSpace(genre)
	for _, g := range expected {
		if strings.EqualFold(genre, strings.TrimSpace(g)) {
			return true
		}
	}
	return false
}

// check which keywords appear in the retrieved songs
func checkKeywords(keywords []string, results []models.SearchResult) []string {
	found := []string{}

	for _, keyword := range keywords {
		for _, result := range results {
			text := result.Song.Description + " " + result.Song.SongTitle + " " + result.Song.Genre
			if containsKeyword(text, keyword) {
				found = append(found, keyword)
				break
			}
		}
	}

	return found
}

// check if text contains keyword (case-insensitive)
func containsKeyword(text, keyword string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}

// CalculateFScore is the keyword F1 of an answer against the ground truth:
// a keyword is a true positive when it appears in both texts.
func CalculateFScore(predictedAnswer string, groundTruth string, keywords []string) float64 {
	predictedLower := strings.ToLower(predictedAnswer)
	groundTruthLower := strings.ToLower(groundTruth)

	truePositives := 0
	falsePositives := 0
	falseNegatives := 0

	for _, keyword := range keywords {
		keywordLower := strings.ToLower(keyword)
		inPredicted := strings.Contains(predictedLower, keywordLower)
		inGroundTruth := strings.Contains(groundTruthLower, keywordLower)

		switch {
		case inPredicted && inGroundTruth:
			truePositives++
		case inPredicted:
			falsePositives++
		case inGroundTruth:
			falseNegatives++
		}
	}

	precision := 0.0
	if truePositives+falsePositives > 0 {
		precision = float64(truePositives) / float64(truePositives+falsePositives)
	}

	recall := 0.0
	if truePositives+falseNegatives > 0 {
		recall = float64(truePositives) / float64(truePositives+falseNegatives)
	}

	if precision+recall == 0 {
		return 0
	}
	return 2 * (precision * recall) / (precision + recall)
}

// save the evaluation report to a JSON file
func SaveReport(report *EvaluationReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// print a summary of the evaluation results
func PrintSummary(report *EvaluationReport) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("EVALUATION SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Total Questions:      %d\n", report.Metrics.TotalQuestions)
	fmt.Printf("Genre Hits:           %d\n", report.Metrics.SuccessfulQueries)
	fmt.Printf("Failed Queries:       %d\n", report.Metrics.FailedQueries)
	fmt.Printf("Genre Hit Rate:       %.2f%%\n", report.Metrics.GenreHitRate*100)
	fmt.Printf("MRR:                  %.3f\n", report.Metrics.MeanRecipRank)
	fmt.Printf("Avg Keyword Recall:   %.3f\n", report.Metrics.AvgKeywordRecall)
	fmt.Printf("Avg F-Score:          %.3f\n", report.Metrics.AvgFScore)
	fmt.Printf("Avg Response Time:    %.0f ms\n", report.Metrics.AvgResponseTime)
	fmt.Printf("Avg Songs Retrieved:  %.1f\n", report.Metrics.AvgSongsRetrieved)
	fmt.Printf("Avg Relevant Songs:   %.1f\n", report.Metrics.AvgRelevantSongs)
	fmt.Println(strings.Repeat("=", 60))

	fmt.Println("\nConfiguration:")
	for key, value := range report.Metrics.Configuration {
		fmt.Printf("  %s: %v\n", key, value)
	}
	fmt.Println(strings.Repeat("=", 60) + "\n")
}
