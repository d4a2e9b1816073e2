// Package container runs tool images on a Docker daemon.
//
// Client implements toolrunner.ContainerClient. Each run pulls the image when
// it is missing locally, creates the container with the composed environment
// and labels, and starts it. The returned Handle follows the container's logs
// as a line iterator and removes the container on Cleanup.
//
// # Connecting
//
// NewClient honours DOCKER_HOST and the other standard Docker environment
// variables, then falls back to the usual socket locations for Linux, Docker
// Desktop and Colima.
//
// # Example
//
//	cli, err := container.NewClient(container.WithNetwork("unstract-network"))
//	if err != nil {
//	    return err
//	}
//	defer cli.Close()
//
//	runner := toolrunner.NewRunner(cli, toolrunner.WithImage("unstract/tool-classifier", "0.0.1"))
//
// # Labels
//
// Every container carries LabelManagedBy, and LabelFileExecutionID when the
// run belongs to a file execution. Labels from TOOL_CONTAINER_LABELS are
// added on top.
package container
