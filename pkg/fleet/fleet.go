// Package fleet fans one bridge command out across multiple devices with
// bounded parallelism.
package fleet

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sotalab/droidctl/pkg/adb"
)

// Runner is the device-command surface the executor needs. *adb.Session
// implements it.
type Runner interface {
	Run(command any, opts ...adb.RunOption) (string, error)
	Shell(command any, opts ...adb.RunOption) (string, error)
}

// Task is one command targeted at one device.
type Task struct {
	RunID   string
	Device  string
	Command string
	Shell   bool // run inside the device shell instead of the bridge vocabulary
}

// Result is the outcome of one task.
type Result struct {
	Task     *Task
	Output   string
	Err      error
	Duration time.Duration
}

// Executor runs tasks across devices with a fixed worker count.
type Executor struct {
	parallel int
	runner   Runner
}

// NewExecutor creates an executor over a session with the given
// parallelism.
func NewExecutor(parallel int, runner Runner) *Executor {
	if parallel < 1 {
		parallel = 1
	}
	return &Executor{parallel: parallel, runner: runner}
}

// GenerateTasks builds one task per device for a single command.
func GenerateTasks(devices []string, command string, shell bool) []*Task {
	tasks := make([]*Task, len(devices))
	for i, device := range devices {
		tasks[i] = &Task{
			RunID:   uuid.New().String(),
			Device:  device,
			Command: command,
			Shell:   shell,
		}
	}
	return tasks
}

// Execute runs all tasks and returns a result per task, in task order.
func (e *Executor) Execute(tasks []*Task) []*Result {
	results := make([]*Result, len(tasks))
	taskChan := make(chan int, len(tasks))
	var wg sync.WaitGroup

	for i := range tasks {
		taskChan <- i
	}
	close(taskChan)

	for w := 0; w < e.parallel; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range taskChan {
				task := tasks[i]
				start := time.Now()
				logrus.Debugf("[Worker %d] Running %s on %s", workerID, task.Command, task.Device)

				var output string
				var err error
				if task.Shell {
					output, err = e.runner.Shell(task.Command, adb.OnDevice(task.Device))
				} else {
					output, err = e.runner.Run(task.Command, adb.OnDevice(task.Device))
				}

				duration := time.Since(start)
				results[i] = &Result{Task: task, Output: output, Err: err, Duration: duration}

				if err != nil {
					logrus.Warnf("[Worker %d] %s on %s failed: %v (%.1fs)",
						workerID, task.Command, task.Device, err, duration.Seconds())
				}
			}
		}(w)
	}

	wg.Wait()
	return results
}

// Summary tallies execution results.
func Summary(results []*Result) (total, succeeded, failed int, totalDuration time.Duration) {
	total = len(results)
	for _, r := range results {
		if r.Err != nil {
			failed++
		} else {
			succeeded++
		}
		totalDuration += r.Duration
	}
	return
}

// PrintSummary prints per-device outputs and a tally.
func PrintSummary(results []*Result) {
	for _, r := range results {
		fmt.Printf("--- %s ---\n", r.Task.Device)
		if r.Err != nil {
			fmt.Printf("error: %v\n", r.Err)
			continue
		}
		if r.Output != "" {
			fmt.Println(r.Output)
		}
	}
	total, succeeded, failed, totalDuration := Summary(results)
	fmt.Printf("Total: %d, Succeeded: %d, Failed: %d (%s)\n",
		total, succeeded, failed, totalDuration.Round(time.Millisecond))
}
