package app

import (
	"math/rand"

	"testseries-attempt-service/internal/domain"
)

// Select draws the exam paper for one attempt from a test's fixed pool.
//
// Passage questions and their children travel as one atomic block and are
// placed first, in pool order, skipping any block that would not fit whole.
// Remaining capacity is filled from the singles in priority order: questions
// carrying an image, then manual free-response questions, then plain MCQ
// questions shuffled with rnd. Only the MCQ sub-sequence is randomized; the
// final list is never re-shuffled globally.
//
// The result has exactly target questions whenever the pool allows it, and
// everything available otherwise. Select never mutates the pool.
func Select(pool []domain.Question, target int, rnd *rand.Rand) []domain.Question {
	if target <= 0 || len(pool) == 0 {
		return nil
	}

	blocks, singles := partitionBlocks(pool)
	image, manual, mcq := bucketSingles(singles)

	rnd.Shuffle(len(mcq), func(i, j int) {
		mcq[i], mcq[j] = mcq[j], mcq[i]
	})

	result := make([]domain.Question, 0, target)
	for _, block := range blocks {
		if len(result)+len(block) > target {
			continue
		}
		result = append(result, block...)
	}
	result = fillUpTo(result, image, target)
	result = fillUpTo(result, manual, target)
	result = fillUpTo(result, mcq, target)

	return trimToTarget(result, target)
}

// partitionBlocks splits the pool into passage blocks (passage first, then
// its children in pool order) and everything else. A child whose parent is
// not in the pool cannot form a block and falls back to being a single.
func partitionBlocks(pool []domain.Question) (blocks [][]domain.Question, singles []domain.Question) {
	children := make(map[string][]domain.Question)
	passageIDs := make(map[string]bool)
	for _, q := range pool {
		if q.Type == domain.QuestionPassage {
			passageIDs[q.ID] = true
		}
	}
	for _, q := range pool {
		if q.ParentQuestionID != "" && passageIDs[q.ParentQuestionID] {
			children[q.ParentQuestionID] = append(children[q.ParentQuestionID], q)
		}
	}

	for _, q := range pool {
		switch {
		case q.Type == domain.QuestionPassage:
			block := append([]domain.Question{q}, children[q.ID]...)
			blocks = append(blocks, block)
		case q.ParentQuestionID != "" && passageIDs[q.ParentQuestionID]:
			// already placed inside its parent's block
		default:
			singles = append(singles, q)
		}
	}
	return blocks, singles
}

// bucketSingles orders the non-passage questions by selection priority.
// An image anywhere on the question outranks its type.
func bucketSingles(singles []domain.Question) (image, manual, mcq []domain.Question) {
	for _, q := range singles {
		switch {
		case q.HasImage():
			image = append(image, q)
		case q.Type == domain.QuestionManual:
			manual = append(manual, q)
		default:
			mcq = append(mcq, q)
		}
	}
	return image, manual, mcq
}

func fillUpTo(result, bucket []domain.Question, target int) []domain.Question {
	for _, q := range bucket {
		if len(result) >= target {
			break
		}
		result = append(result, q)
	}
	return result
}

// trimToTarget removes excess questions one at a time, preferring MCQ over
// manual over image questions and never touching a passage or a passage
// child. Each pass removes the first removable candidate in current result
// order; passes repeat until the target is met or nothing removable remains.
func trimToTarget(result []domain.Question, target int) []domain.Question {
	inPassage := make(map[string]bool)
	for _, q := range result {
		if q.Type == domain.QuestionPassage {
			inPassage[q.ID] = true
		}
	}
	removable := func(q domain.Question) bool {
		if q.Type == domain.QuestionPassage {
			return false
		}
		return q.ParentQuestionID == "" || !inPassage[q.ParentQuestionID]
	}

	order := []func(domain.Question) bool{
		func(q domain.Question) bool { return removable(q) && !q.HasImage() && q.Type == domain.QuestionMCQ },
		func(q domain.Question) bool { return removable(q) && !q.HasImage() && q.Type == domain.QuestionManual },
		func(q domain.Question) bool { return removable(q) && q.HasImage() },
	}

	for len(result) > target {
		removed := false
		for _, match := range order {
			for i, q := range result {
				if match(q) {
					result = append(result[:i], result[i+1:]...)
					removed = true
					break
				}
			}
			if removed {
				break
			}
		}
		if !removed {
			break
		}
	}
	return result
}
