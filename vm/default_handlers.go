package vm

// RegisterDefaultHandlers 注册全部 vault 操作
// rent 为 nil 时使用 DefaultRentSchedule
func RegisterDefaultHandlers(reg *HandlerRegistry, rent *RentSchedule) error {
	schedule := DefaultRentSchedule()
	if rent != nil {
		schedule = *rent
	}

	handlers := []TxHandler{
		&InitializeVaultTxHandler{}, // 创建
		&PingTxHandler{},            // 签到
		&SetDelegateTxHandler{},     // 设置 delegate
		&UpdateVaultTxHandler{},     // 修改设置
		&TopUpBountyTxHandler{},     // 追加 bounty
		&LockAssetTxHandler{},       // 锁定资产
		&TriggerReleaseTxHandler{},  // 触发释放
		&ClaimNativeTxHandler{},     // 领取原生币
		&ClaimAssetTxHandler{},      // 领取资产
		&CloseVaultTxHandler{},      // owner 关闭
		&ClaimAndCloseTxHandler{},   // recipient 领取并关闭
	}

	for _, h := range handlers {
		if ra, ok := h.(RentAware); ok {
			ra.SetRentSchedule(schedule)
		}
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}
