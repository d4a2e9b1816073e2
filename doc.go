// Package toolrunner runs document-processing tools in isolated containers.
//
// A tool is a container image that talks to its caller only through JSON
// lines on its output stream. The runner starts one container per run,
// reads those lines as they arrive, republishes progress events to a
// real-time channel and returns exactly one RunResult.
//
// # Quick Start
//
//	docker, err := container.NewClient()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer docker.Close()
//
//	runner := toolrunner.NewRunner(docker,
//	    toolrunner.WithImage("unstract/tool-classifier", "0.0.45"),
//	    toolrunner.WithPublisher(broker),
//	)
//
//	result := runner.RunContainer(ctx, toolrunner.ExecutionContext{
//	    OrganizationID:  "org_1",
//	    WorkflowID:      "wf_1",
//	    ExecutionID:     "exec_1",
//	    FileExecutionID: "file_1",
//	    Channel:         "exec_1",
//	}, settings, nil)
//	if result.Failed() {
//	    log.Printf("tool failed: %s", result.Error)
//	}
//
// # Log Protocol
//
// Every line is a JSON object with a type of LOG, UPDATE, COST, RESULT or
// SINGLE_STEP:
//
//   - LOG with level ERROR ends the run; its log field becomes RunResult.Error
//   - RESULT ends the run; its result field becomes RunResult.Result
//   - UPDATE is tagged with the tool instance id and published
//   - everything else is published unchanged
//
// Lines that are not JSON objects, or carry an unknown type, are skipped.
// Published events gain execution_id, organization_id, file_execution_id
// and a timestamp taken from emitted_at when present.
//
// # Cleanup
//
// Once a container has started, Container.Cleanup runs exactly once, no
// matter how the run ends.
package toolrunner
