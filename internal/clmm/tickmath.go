package clmm

import (
	"fmt"
	"math"
	"math/big"
)

const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	Q96     = new(big.Int).Lsh(big.NewInt(1), 96)
	Q192    = new(big.Int).Lsh(big.NewInt(1), 192)
	maxU256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	MinSqrtRatio = big.NewInt(4295128739)
	MaxSqrtRatio = mustBig("1461446703485210103287273052203988822378723970342")

	q32Mask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 32), big.NewInt(1))

	// sqrt(1.0001)^-(2^i) as Q128.128, indexed by bit i of |tick|.
	tickRatios = []*big.Int{
		mustHex("fffcb933bd6fad37aa2d162d1a594001"),
		mustHex("fff97272373d413259a46990580e213a"),
		mustHex("fff2e50f5f656932ef12357cf3c7fdcc"),
		mustHex("ffe5caca7e10e4e61c3624eaa0941cd0"),
		mustHex("ffcb9843d60f6159c9db58835c926644"),
		mustHex("ff973b41fa98c081472e6896dfb254c0"),
		mustHex("ff2ea16466c96a3843ec78b326b52861"),
		mustHex("fe5dee046a99a2a811c461f1969c3053"),
		mustHex("fcbe86c7900a88aedcffc83b479aa3a4"),
		mustHex("f987a7253ac413176f2b074cf7815e54"),
		mustHex("f3392b0822b70005940c7a398e4b70f3"),
		mustHex("e7159475a2c29b7443b29c7fa6e889d9"),
		mustHex("d097f3bdfd2022b8845ad8f792aa5825"),
		mustHex("a9f746462d870fdf8a65dc1f90e061e5"),
		mustHex("70d869a156d2a1b890bb3df62baf32f7"),
		mustHex("31be135f97d08fd981231505542fcfa6"),
		mustHex("9aa508b5b7a84e1c677de54f3e99bc9"),
		mustHex("5d6af8dedb81196699c329225ee604"),
		mustHex("2216e584f5fa1ea926041bedfe98"),
		mustHex("48a170391f7dc42444e8fa2"),
	}
)

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96 value, rounded up.
func SqrtRatioAtTick(tick int32) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("%w: tick %d", ErrTickOutOfBounds, tick)
	}
	absTick := int64(tick)
	if absTick < 0 {
		absTick = -absTick
	}

	ratio := new(big.Int).Lsh(big.NewInt(1), 128)
	if absTick&1 != 0 {
		ratio.Set(tickRatios[0])
	}
	for i := 1; i < len(tickRatios); i++ {
		if absTick&(1<<uint(i)) != 0 {
			ratio.Mul(ratio, tickRatios[i])
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		ratio.Div(maxU256, ratio)
	}

	out := new(big.Int).Rsh(ratio, 32)
	if new(big.Int).And(ratio, q32Mask).Sign() != 0 {
		out.Add(out, big.NewInt(1))
	}
	return out, nil
}

// TickAtSqrtRatio returns the greatest tick whose sqrt ratio is <= sqrtPriceX96.
func TickAtSqrtRatio(sqrtPriceX96 *big.Int) (int32, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) >= 0 {
		return 0, fmt.Errorf("%w: sqrt price %v", ErrTickOutOfBounds, sqrtPriceX96)
	}

	ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), new(big.Float).SetInt(Q96)).Float64()
	estimate := int32(math.Floor(2 * math.Log(ratio) / math.Log(1.0001)))
	if estimate < MinTick {
		estimate = MinTick
	}
	if estimate > MaxTick {
		estimate = MaxTick
	}

	tick := estimate
	for tick > MinTick {
		at, err := SqrtRatioAtTick(tick)
		if err != nil {
			return 0, err
		}
		if at.Cmp(sqrtPriceX96) <= 0 {
			break
		}
		tick--
	}
	for tick < MaxTick {
		next, err := SqrtRatioAtTick(tick + 1)
		if err != nil {
			return 0, err
		}
		if next.Cmp(sqrtPriceX96) > 0 {
			break
		}
		tick++
	}
	return tick, nil
}

func mustHex(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("invalid hex constant " + s)
	}
	return v
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid decimal constant " + s)
	}
	return v
}
