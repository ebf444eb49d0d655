package service

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"stock_platform/internal/models"
)

// OutcomeStatus 单个更新任务的终态
type OutcomeStatus string

const (
	StatusUpdated OutcomeStatus = "updated" // 有新数据写入
	StatusSkipped OutcomeStatus = "skipped" // 无需更新
	StatusFailed  OutcomeStatus = "failed"  // 获取或写入失败
)

// Outcome 单只证券单类别的更新结果，记录后不再变更
type Outcome struct {
	Code     string              `json:"code"`
	Category models.DataCategory `json:"category"`
	Status   OutcomeStatus       `json:"status"`
	Rows     int                 `json:"rows,omitempty"`   // updated 时的写入行数
	Reason   string              `json:"reason,omitempty"` // skipped/failed 的原因
}

// Failure 失败明细
type Failure struct {
	Code     string              `json:"code"`
	Category models.DataCategory `json:"category"`
	Reason   string              `json:"reason"`
}

// RunSummary 一次更新运行的汇总结果
type RunSummary struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	Elapsed     time.Duration `json:"elapsed"`
	Total       int           `json:"total"`   // 提交的任务总数
	Updated     int           `json:"updated"` // 各终态计数，三者之和恒等于 Total
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	RowsWritten int           `json:"rows_written"`
	Failures    []Failure     `json:"failures,omitempty"`
}

// TotalFailure 是否全部任务失败
func (s *RunSummary) TotalFailure() bool {
	return s.Total > 0 && s.Failed == s.Total
}

// FailureNotes 失败原因摘要，截断后写入运行记录
func (s *RunSummary) FailureNotes(limit int) string {
	if len(s.Failures) == 0 {
		return ""
	}
	notes := make([]string, 0, len(s.Failures))
	for _, f := range s.Failures {
		notes = append(notes, fmt.Sprintf("%s/%s: %s", f.Code, f.Category, f.Reason))
		if limit > 0 && len(notes) >= limit {
			notes = append(notes, fmt.Sprintf("... 共 %d 条失败", len(s.Failures)))
			break
		}
	}
	return strings.Join(notes, "; ")
}

// aggregator 结果聚合器
// 并发任务乱序上报结果，按 (code, category) 去重：
// 同一任务重复上报时覆盖而不是追加，保证每个任务恰好计入一次
type aggregator struct {
	mu       sync.Mutex
	outcomes map[string]Outcome
}

func newAggregator() *aggregator {
	return &aggregator{
		outcomes: make(map[string]Outcome),
	}
}

// Record 记录一个任务结果
func (a *aggregator) Record(o Outcome) {
	key := o.Code + "|" + string(o.Category)
	a.mu.Lock()
	a.outcomes[key] = o
	a.mu.Unlock()
}

// Count 已记录的任务数
func (a *aggregator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.outcomes)
}

// Summary 汇总全部结果，在工作池排空后调用
func (a *aggregator) Summary(runID string, startedAt time.Time, elapsed time.Duration) *RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	summary := &RunSummary{
		RunID:     runID,
		StartedAt: startedAt,
		Elapsed:   elapsed,
		Total:     len(a.outcomes),
	}

	for _, o := range a.outcomes {
		switch o.Status {
		case StatusUpdated:
			summary.Updated++
			summary.RowsWritten += o.Rows
		case StatusSkipped:
			summary.Skipped++
		case StatusFailed:
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{
				Code:     o.Code,
				Category: o.Category,
				Reason:   o.Reason,
			})
		}
	}

	sort.Slice(summary.Failures, func(i, j int) bool {
		if summary.Failures[i].Code != summary.Failures[j].Code {
			return summary.Failures[i].Code < summary.Failures[j].Code
		}
		return summary.Failures[i].Category < summary.Failures[j].Category
	})

	return summary
}
