// Package esoh computes the electrode state of health of a lithium-ion cell:
// the stoichiometry limits of both electrodes at 100% and 0% state of charge
// and the resulting cell capacity.
//
// The inputs are the terminal voltage window, the capacities of the negative
// and positive electrodes, the total cyclable lithium and the open-circuit
// potential curves of both electrodes. Two one-dimensional root searches are
// run in sequence:
//
//   - x100 such that U_p(y100) - U_n(x100) = Vmax, with
//     y100 = (nLi*F/3600 - x100*Cn) / Cp
//   - the capacity C such that U_p(y0) - U_n(x0) = Vmin, with
//     x0 = x100 - C/Cn and y0 = y100 + C/Cp
//
// Each search is confined to the range where every stoichiometry stays in
// [0, 1]. A voltage limit that cannot be reached inside that range yields
// ErrInfeasibleVoltageWindow instead of an out-of-range answer.
package esoh
