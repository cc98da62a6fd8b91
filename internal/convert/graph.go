package convert

import (
	"cmp"
	"slices"
	"strings"

	"github.com/bgricker/workflowc/internal/template"
	"github.com/bgricker/workflowc/internal/workflow"
)

// ResolveGraph checks the `needs` graph of jobs. It reports a missing root,
// each reference to an undeclared job, and each dependency cycle once.
// Job ids are compared case-insensitively.
func ResolveGraph(ctx *template.Context, jobs []workflow.JobItem) {
	if len(jobs) == 0 {
		return
	}
	index := make(map[string]int, len(jobs))
	for i, j := range jobs {
		index[strings.ToLower(j.JobID())] = i
	}

	// Kahn's algorithm over declared dependencies.
	remaining := make([]map[int]bool, len(jobs))
	dependents := make([][]int, len(jobs))
	var queue []int
	for i, j := range jobs {
		remaining[i] = map[int]bool{}
		for _, need := range j.JobNeeds() {
			dep, ok := index[strings.ToLower(need)]
			if !ok {
				ctx.Errorf(j.JobSource(), workflow.CodeJobUnknownDependency, "Job '%s' depends on unknown job '%s'.", j.JobID(), need)
				remaining[i][-1] = true
				continue
			}
			if !remaining[i][dep] {
				remaining[i][dep] = true
				dependents[dep] = append(dependents[dep], i)
			}
		}
		if len(remaining[i]) == 0 {
			queue = append(queue, i)
		}
	}
	if len(queue) == 0 {
		ctx.Errorf(jobs[0].JobSource(), workflow.CodeJobNoRoot, "The workflow must contain at least one job with no dependencies.")
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, d := range dependents[n] {
			delete(remaining[d], n)
			if len(remaining[d]) == 0 {
				queue = append(queue, d)
			}
		}
	}

	for _, scc := range cycles(jobs, index, remaining) {
		names := make([]string, 0, len(scc))
		for _, i := range scc {
			names = append(names, "'"+jobs[i].JobID()+"'")
		}
		first := jobs[scc[0]]
		if len(scc) == 1 {
			ctx.Errorf(first.JobSource(), workflow.CodeJobCycle, "Job '%s' depends on itself.", first.JobID())
			continue
		}
		ctx.Errorf(first.JobSource(), workflow.CodeJobCycle, "Jobs %s form a dependency cycle.", strings.Join(names, ", "))
	}
}

// cycles returns the strongly connected components among unsatisfied jobs
// that contain a cycle, ordered by their first job.
func cycles(jobs []workflow.JobItem, index map[string]int, remaining []map[int]bool) [][]int {
	edges := make([][]int, len(jobs))
	for i, j := range jobs {
		if len(remaining[i]) == 0 {
			continue
		}
		for _, need := range j.JobNeeds() {
			if dep, ok := index[strings.ToLower(need)]; ok && remaining[i][dep] {
				edges[i] = append(edges[i], dep)
			}
		}
	}

	// Iterative Tarjan.
	const unvisited = -1
	order := make([]int, len(jobs))
	low := make([]int, len(jobs))
	onStack := make([]bool, len(jobs))
	for i := range order {
		order[i] = unvisited
	}
	var (
		stack  []int
		out    [][]int
		next   int
		frames []struct{ node, edge int }
	)
	for root := range jobs {
		if order[root] != unvisited || len(edges[root]) == 0 {
			continue
		}
		frames = append(frames, struct{ node, edge int }{root, 0})
		order[root], low[root] = next, next
		next++
		stack = append(stack, root)
		onStack[root] = true

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			if f.edge < len(edges[f.node]) {
				w := edges[f.node][f.edge]
				f.edge++
				switch {
				case order[w] == unvisited:
					order[w], low[w] = next, next
					next++
					stack = append(stack, w)
					onStack[w] = true
					frames = append(frames, struct{ node, edge int }{w, 0})
				case onStack[w] && order[w] < low[f.node]:
					low[f.node] = order[w]
				}
				continue
			}
			v := f.node
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].node
				if low[v] < low[parent] {
					low[parent] = low[v]
				}
			}
			if low[v] != order[v] {
				continue
			}
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 || slices.Contains(edges[v], v) {
				slices.Sort(scc)
				out = append(out, scc)
			}
		}
	}

	// Order components by their earliest declared job.
	slices.SortFunc(out, func(a, b []int) int { return cmp.Compare(a[0], b[0]) })
	return out
}
