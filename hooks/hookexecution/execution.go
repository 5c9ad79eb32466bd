package hookexecution

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/prebid/prebid-auction/hooks"
	"github.com/prebid/prebid-auction/hooks/hookstage"
	"github.com/prebid/prebid-auction/metrics"
)

type hookResponse[T any] struct {
	Err           error
	ExecutionTime time.Duration
	HookID        HookID
	Result        hookstage.HookResult[T]
}

type hookHandler[H any, P any] func(
	context.Context,
	hookstage.ModuleInvocationContext,
	H,
	P,
) (hookstage.HookResult[P], error)

// executionContext holds the auction wide values shared by every hook of a stage.
type executionContext struct {
	endpoint       string
	stage          string
	accountID      string
	moduleContexts *hookstage.ModuleContexts
}

func (ctx executionContext) invocationContext(hookID HookID) hookstage.ModuleInvocationContext {
	moduleCtx, _ := ctx.moduleContexts.Get(hookID.ModuleCode)
	return hookstage.ModuleInvocationContext{
		AccountID:     ctx.accountID,
		Endpoint:      ctx.endpoint,
		HookImplCode:  hookID.HookImplCode,
		ModuleContext: moduleCtx,
	}
}

func executeStage[H any, P any](
	executionCtx executionContext,
	plan hooks.Plan[H],
	payload P,
	hookHandler hookHandler[H, P],
	metricEngine metrics.MetricsEngine,
) (StageOutcome, P, *RejectError) {
	stageOutcome := StageOutcome{Stage: executionCtx.stage}
	stageOutcome.Groups = make([]GroupOutcome, 0, len(plan))

	for _, group := range plan {
		groupOutcome, newPayload, reject := executeGroup(executionCtx, group, payload, hookHandler, metricEngine)
		stageOutcome.ExecutionTimeMillis += groupOutcome.ExecutionTimeMillis
		stageOutcome.Groups = append(stageOutcome.Groups, groupOutcome)
		if reject != nil {
			return stageOutcome, payload, reject
		}

		payload = newPayload
	}

	return stageOutcome, payload, nil
}

// executeGroup runs the hooks of the group concurrently and applies their results in plan order.
func executeGroup[H any, P any](
	executionCtx executionContext,
	group hooks.Group[H],
	payload P,
	hookHandler hookHandler[H, P],
	metricEngine metrics.MetricsEngine,
) (GroupOutcome, P, *RejectError) {
	var wg sync.WaitGroup
	responses := make([]hookResponse[P], len(group.Hooks))

	for i, hook := range group.Hooks {
		wg.Add(1)
		go func(i int, hw hooks.HookWrapper[H]) {
			defer wg.Done()
			responses[i] = executeHook(executionCtx, hw, payload, hookHandler, group.Timeout)
		}(i, hook)
	}
	wg.Wait()

	return handleHookResponses(executionCtx, responses, payload, metricEngine)
}

func executeHook[H any, P any](
	executionCtx executionContext,
	hw hooks.HookWrapper[H],
	payload P,
	hookHandler hookHandler[H, P],
	timeout time.Duration,
) hookResponse[P] {
	hookID := HookID{ModuleCode: hw.Module, HookImplCode: hw.Code}
	invocationCtx := executionCtx.invocationContext(hookID)
	hookRespCh := make(chan hookResponse[P], 1)
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				glog.Errorf("OpenRTB auction recovered panic in module hook %s.%s: %v, Stack trace is: %v", hw.Module, hw.Code, r, string(debug.Stack()))
				hookRespCh <- hookResponse[P]{HookID: hookID, Err: fmt.Errorf("hook panicked: %v", r)}
			}
		}()
		result, err := hookHandler(ctx, invocationCtx, hw.Hook, payload)
		hookRespCh <- hookResponse[P]{HookID: hookID, Result: result, Err: err}
	}()

	select {
	case res := <-hookRespCh:
		res.ExecutionTime = time.Since(startTime)
		return res
	case <-ctx.Done():
		return hookResponse[P]{HookID: hookID, Err: TimeoutError{}, ExecutionTime: time.Since(startTime)}
	}
}

func handleHookResponses[P any](
	executionCtx executionContext,
	responses []hookResponse[P],
	payload P,
	metricEngine metrics.MetricsEngine,
) (GroupOutcome, P, *RejectError) {
	groupOutcome := GroupOutcome{InvocationResults: make([]HookOutcome, 0, len(responses))}

	for _, r := range responses {
		if r.ExecutionTime > groupOutcome.ExecutionTimeMillis {
			groupOutcome.ExecutionTimeMillis = r.ExecutionTime
		}

		hookOutcome := HookOutcome{
			ExecutionTime: ExecutionTime{ExecutionTimeMillis: r.ExecutionTime},
			HookID:        r.HookID,
			Status:        StatusSuccess,
			Message:       r.Result.Message,
			DebugMessages: r.Result.DebugMessages,
			Errors:        r.Result.Errors,
			Warnings:      r.Result.Warnings,
		}
		labels := metrics.ModuleLabels{
			Module:    r.HookID.ModuleCode,
			Stage:     executionCtx.stage,
			AccountID: executionCtx.accountID,
		}

		if r.Err != nil {
			hookOutcome.Status, labels.Status = errorStatus(r.Err)
			hookOutcome.Action = ActionNone
			hookOutcome.Errors = append(hookOutcome.Errors, r.Err.Error())
			metricEngine.RecordModuleExecution(labels, r.ExecutionTime)
			groupOutcome.InvocationResults = append(groupOutcome.InvocationResults, hookOutcome)
			continue
		}

		if len(r.Result.ModuleContext) > 0 {
			executionCtx.moduleContexts.Put(r.HookID.ModuleCode, r.Result.ModuleContext)
		}

		if r.Result.Reject {
			reject := &RejectError{NBR: r.Result.NbrCode, Hook: r.HookID, Stage: executionCtx.stage}
			hookOutcome.Action = ActionReject
			hookOutcome.Errors = append(hookOutcome.Errors, reject.Error())
			labels.Status = metrics.ModuleStatusRejected
			metricEngine.RecordModuleExecution(labels, r.ExecutionTime)
			groupOutcome.InvocationResults = append(groupOutcome.InvocationResults, hookOutcome)
			return groupOutcome, payload, reject
		}

		mutations := r.Result.ChangeSet.Mutations()
		if len(mutations) == 0 {
			hookOutcome.Action = ActionNone
			labels.Status = metrics.ModuleStatusNoop
			metricEngine.RecordModuleExecution(labels, r.ExecutionTime)
			groupOutcome.InvocationResults = append(groupOutcome.InvocationResults, hookOutcome)
			continue
		}

		hookOutcome.Action = ActionUpdate
		for _, mut := range mutations {
			p, err := mut.Apply(payload)
			if err != nil {
				hookOutcome.Warnings = append(hookOutcome.Warnings, fmt.Sprintf("failed to apply hook mutation: %s", err))
				continue
			}
			payload = p
			hookOutcome.DebugMessages = append(hookOutcome.DebugMessages, fmt.Sprintf("Hook mutation successfully applied, affected key: %s, mutation type: %s", mut.Key(), mut.Type()))
		}
		labels.Status = metrics.ModuleStatusSuccess
		metricEngine.RecordModuleExecution(labels, r.ExecutionTime)
		groupOutcome.InvocationResults = append(groupOutcome.InvocationResults, hookOutcome)
	}

	return groupOutcome, payload, nil
}

func errorStatus(err error) (Status, metrics.ModuleStatus) {
	switch err.(type) {
	case TimeoutError:
		return StatusTimeout, metrics.ModuleStatusTimeout
	case FailureError:
		return StatusFailure, metrics.ModuleStatusFailed
	default:
		return StatusExecutionFailure, metrics.ModuleStatusFailed
	}
}
