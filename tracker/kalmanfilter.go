package tracker

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const (
	// stateDim is the size of the state vector [x, y, vx, vy]
	stateDim = 4
	// measureDim is the size of the measurement vector [x, y]
	measureDim = 2

	// DefaultProcessNoise is the scale applied to the identity matrix to
	// form the process noise covariance
	DefaultProcessNoise = 0.05
	// DefaultMeasurementNoise is the scale applied to the identity matrix to
	// form the measurement noise covariance
	DefaultMeasurementNoise = 1.0

	// initial variances of the state when a filter is started from its
	// first measurement
	initPositionVar = 1.0
	initVelocityVar = 10.0
)

// StateMean represents a 1x4 matrix [x, y, vx, vy]
type StateMean []float64

// StateCov represents a 4x4 matrix
type StateCov struct {
	*mat.Dense
}

// KalmanFilter is a constant velocity Kalman filter over the state
// [x, y, vx, vy] with position only measurements [x, y].  Each tracked object
// owns its own instance, the filter state is never shared between objects.
type KalmanFilter struct {
	// motionMat is the transition matrix advancing position by velocity
	motionMat *mat.Dense
	// updateMat is the measurement matrix selecting position from state
	updateMat *mat.Dense
	// processCov is the process noise covariance
	processCov *mat.Dense
	// measureCov is the measurement noise covariance
	measureCov *mat.SymDense
	// mean is the current state estimate
	mean StateMean
	// covariance is the current error covariance
	covariance StateCov
}

// NewKalmanFilter initializes and returns a new KalmanFilter using the
// given process and measurement noise scales
func NewKalmanFilter(processNoise, measurementNoise float64) *KalmanFilter {

	// transition matrix, x += vx and y += vy each step
	motionMat := mat.NewDense(stateDim, stateDim, []float64{
		1, 0, 1, 0,
		0, 1, 0, 1,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})

	updateMat := mat.NewDense(measureDim, stateDim, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})

	processCov := mat.NewDense(stateDim, stateDim, nil)

	for i := 0; i < stateDim; i++ {
		processCov.Set(i, i, processNoise)
	}

	measureCov := mat.NewSymDense(measureDim, nil)

	for i := 0; i < measureDim; i++ {
		measureCov.SetSym(i, i, measurementNoise)
	}

	return &KalmanFilter{
		motionMat:  motionMat,
		updateMat:  updateMat,
		processCov: processCov,
		measureCov: measureCov,
		mean:       make(StateMean, stateDim),
		covariance: StateCov{mat.NewDense(stateDim, stateDim, nil)},
	}
}

// Initiate starts the filter from a first position measurement with zero
// velocity
func (kf *KalmanFilter) Initiate(x, y float64) {

	kf.mean[0] = x
	kf.mean[1] = y
	kf.mean[2] = 0
	kf.mean[3] = 0

	kf.covariance.Zero()
	kf.covariance.Set(0, 0, initPositionVar)
	kf.covariance.Set(1, 1, initPositionVar)
	kf.covariance.Set(2, 2, initVelocityVar)
	kf.covariance.Set(3, 3, initVelocityVar)
}

// Mean returns a copy of the current state estimate
func (kf *KalmanFilter) Mean() StateMean {
	out := make(StateMean, stateDim)
	copy(out, kf.mean)
	return out
}

// Covariance returns a copy of the current error covariance
func (kf *KalmanFilter) Covariance() *mat.Dense {
	return mat.DenseCopyOf(kf.covariance.Dense)
}

// Predict advances the state one step with the motion model and returns the
// predicted position
func (kf *KalmanFilter) Predict() (float64, float64) {

	meanVec := mat.NewVecDense(stateDim, nil)
	meanVec.MulVec(kf.motionMat, mat.NewVecDense(stateDim, kf.mean))

	for i := 0; i < stateDim; i++ {
		kf.mean[i] = meanVec.AtVec(i)
	}

	// P = F * P * F' + Q
	cov := mat.NewDense(stateDim, stateDim, nil)
	cov.Mul(kf.motionMat, kf.covariance.Dense)
	cov.Mul(cov, kf.motionMat.T())
	cov.Add(cov, kf.processCov)

	kf.covariance.Dense = cov

	return kf.mean[0], kf.mean[1]
}

// Correct updates the state with a position measurement
func (kf *KalmanFilter) Correct(x, y float64) error {

	// project the state covariance to measurement space, S = H * P * H' + R
	temp := mat.NewDense(measureDim, stateDim, nil)
	temp.Mul(kf.updateMat, kf.covariance.Dense)
	temp2 := mat.NewDense(measureDim, measureDim, nil)
	temp2.Mul(temp, kf.updateMat.T())

	projectedCov := mat.NewSymDense(measureDim, nil)

	for i := 0; i < measureDim; i++ {
		for j := i; j < measureDim; j++ {
			projectedCov.SetSym(i, j, temp2.At(i, j))
		}
	}

	projectedCov.AddSym(projectedCov, kf.measureCov)

	chol := mat.Cholesky{}

	if ok := chol.Factorize(projectedCov); !ok {
		return errors.New("failed to factorize projected covariance")
	}

	// K' = S^-1 * H * P
	var gainT mat.Dense

	if err := chol.SolveTo(&gainT, temp); err != nil {
		return fmt.Errorf("failed to compute kalman gain: %w", err)
	}

	innovation := mat.NewVecDense(measureDim, []float64{
		x - kf.mean[0],
		y - kf.mean[1],
	})

	delta := mat.NewVecDense(stateDim, nil)
	delta.MulVec(gainT.T(), innovation)

	for i := 0; i < stateDim; i++ {
		kf.mean[i] += delta.AtVec(i)
	}

	// P = P - K * H * P
	reduce := mat.NewDense(stateDim, stateDim, nil)
	reduce.Mul(gainT.T(), temp)

	newCov := mat.NewDense(stateDim, stateDim, nil)
	newCov.Sub(kf.covariance.Dense, reduce)

	kf.covariance.Dense = newCov

	return nil
}
