// Package memory keeps the refiner inside its container memory limit.
//
// ConfigureFromEnv derives GOMEMLIMIT from the container limit and
// MEMORY_RATIO, unless GOMEMLIMIT is already set. The limit is MEMORY_LIMIT
// (bytes, for example from the Kubernetes Downward API below) or, failing
// that, /sys/fs/cgroup/memory.max. Call it before the codec is initialised.
//
// Monitor samples the heap against that limit. When usage crosses the
// pause ratio, WaitIfPaused blocks the batch driver and the sweeper between
// assets until usage drops below the resume ratio. Stopping the monitor
// makes WaitIfPaused return false, which ends a running page or sweep.
//
//	spec:
//	  containers:
//	  - name: media-refiner
//	    resources:
//	      limits:
//	        memory: "1Gi"
//	    env:
//	    - name: MEMORY_LIMIT
//	      valueFrom:
//	        resourceFieldRef:
//	          resource: limits.memory
//	    - name: MEMORY_RATIO
//	      value: "0.7"
package memory
