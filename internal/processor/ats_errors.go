package processor

import (
	"errors"
	"fmt"

	"smarthire-ats/internal/types"
)

// PipelineState 单个候选人在评分流水线中的状态
type PipelineState string

const (
	StateRetrieved          PipelineState = "RETRIEVED"
	StateEmbedded           PipelineState = "EMBEDDED"
	StateSkillsExtracted    PipelineState = "SKILLS_EXTRACTED"
	StateEvaluated          PipelineState = "EVALUATED"
	StateScoredAndPersisted PipelineState = "SCORED_AND_PERSISTED"
	StateFailed             PipelineState = "FAILED"
)

// ErrApplicationBusy 同一申请正在被其他请求处理
var ErrApplicationBusy = errors.New("申请正在处理中")

// ErrCandidatePanic 处理候选人时组件发生 panic
var ErrCandidatePanic = errors.New("候选人处理异常")

// StageError 包含阶段、候选人与原因的流水线错误
type StageError struct {
	ApplicationID string
	Stage         PipelineState // 出错时正在进入的阶段
	BaseErr       error         // types 中的错误分类
	Cause         error
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (阶段:%s, 申请:%s): %v", e.BaseErr, e.Stage, e.ApplicationID, e.Cause)
	}
	return fmt.Sprintf("%s (阶段:%s, 申请:%s)", e.BaseErr, e.Stage, e.ApplicationID)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// Is 实现 errors.Is 接口，既匹配错误分类也匹配原因
func (e *StageError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewRetrievalError(applicationID string, cause error) error {
	return &StageError{ApplicationID: applicationID, Stage: StateRetrieved, BaseErr: types.ErrRetrieval, Cause: cause}
}

func NewCapabilityError(applicationID string, stage PipelineState, cause error) error {
	return &StageError{ApplicationID: applicationID, Stage: stage, BaseErr: types.ErrExternalCapability, Cause: cause}
}

func NewPersistenceError(applicationID string, cause error) error {
	return &StageError{ApplicationID: applicationID, Stage: StateScoredAndPersisted, BaseErr: types.ErrPersistence, Cause: cause}
}

func NewPanicError(applicationID string, recovered interface{}) error {
	return &StageError{ApplicationID: applicationID, Stage: StateFailed, BaseErr: ErrCandidatePanic, Cause: fmt.Errorf("panic: %v", recovered)}
}

// AsStageError 提取 StageError，非 StageError 时返回 nil
func AsStageError(err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return nil
}
