package gear

// gearTable maps each input byte to a 64-bit constant used by the rolling
// hash update. Values are a fixed, arbitrary permutation (generated once via
// a splitmix64 stream from a constant seed); what matters is that they are
// stable across runs and reasonably well distributed, not their provenance.
var gearTable = [256]uint64{
	0x49b9a42dc3085cb1, 0x65067ea611dff4b9, 0xdcc8ef6d2631b0c3, 0xd1b674fc20d2e833,
	0xad440d2d8f42cf4b, 0x9a9218a4aa0dded0, 0x87ce46468785f805, 0x250dfd6f09514dbf,
	0xcf5c7cf23f18b2d7, 0xf9beeb15bbb399c6, 0xcc334beaec1b4ae7, 0xd138f4a077654dca,
	0x76e21badaeece079, 0x1f5a87227d858533, 0x6bae92e0b959fcb9, 0x11a2f17c69dd27a1,
	0xc3169df557d5a928, 0x09280195dfa6e83d, 0x08f86aac0e5c9ded, 0xfd0864c80c336c64,
	0x6f681f4a690f3fa8, 0xa8a97c1815f76866, 0xac8589a0ecce237c, 0x60d34084377896dc,
	0xaa3236b42215cb19, 0x52b1ebd2a46ff386, 0x4c61738f343e852f, 0x524452aa75662ffd,
	0xb3fbadab360d1854, 0x9d9964ba922aef6b, 0xd448aedf2c082335, 0xeccea23eeda7fca9,
	0x6ea9ce4bd8fc0291, 0x26338eeaf53ff0ab, 0xd2843a6820141120, 0xde064902167eaa67,
	0x401fa21a1c596109, 0x9da88b04b3fb0365, 0x586246619ac578dc, 0xb05dafaa0c5fe17a,
	0xd0d088ec0575035e, 0x1552838f1b06aba8, 0xedebfa1a453be974, 0x7665077ad90b2d36,
	0x06b482e8071b9b8e, 0x4387fd524b8ee736, 0x268eb6c06601d9e3, 0x65abd5376ca35495,
	0x4d47b3d0ffe78f11, 0x39fa75aee9e7b63c, 0xd9f5c79604c509b1, 0xf46d240e341fe0f5,
	0xcd60cb5591b932d2, 0x7057a4a7368ca97f, 0x102e7e849ac56612, 0xe1fcee80fbdea2c2,
	0xd734fb2708b1e85b, 0xfdc21c46cfcd5b19, 0xa6c09502e63841b5, 0xa059e98d0fd5489a,
	0xf307b17e5b2f5e54, 0x0e7875cd00d78ca6, 0x673cb17fd482544c, 0xcd46e1b34f4d7fe2,
	0x93cf758e97c01a7a, 0x0db893e92062e9f5, 0xee336011f14c42c7, 0xf472a1c21de2e6c3,
	0x6f73b84ce5229c1f, 0x660f20fc9f26dfb7, 0x0b299463d9b9c8e8, 0xa030181baee060f2,
	0xffab756b4cb463f1, 0xa610b245efefab87, 0xfb82214221828f10, 0xb0fe869e79658e38,
	0xbb61fa1c7c65cadb, 0xf7f1a8e338186c7e, 0xeb2c7c1e710ba1ff, 0x4ead07ca3b2b0458,
	0xe3595b8530169fa1, 0x25bbe9c47dbc4c5b, 0x8303a49540c6cb81, 0xbb4c3e707d29e74e,
	0x1474f5aabc3bea00, 0x964b19d50f885d57, 0x83ce78cb3d075639, 0xa03ce588d06f8c19,
	0x3c10df0b0a40b256, 0x0b72e271efd156a0, 0xfc13ee76553e643d, 0xeffe82e556489dbc,
	0xf878a96777364632, 0x871e035cd72b2524, 0x38b8750432e83445, 0xe97407fc10bf26a4,
	0xd362bcf9fe4a18e9, 0x806d1c6e2605dd01, 0xb39590cc8d970074, 0x148bf11f3718b768,
	0x4662163b43d21d0c, 0xa719840fa2361e26, 0x109e97012be1bc07, 0x3f7b851bfb3e171c,
	0xccef6def2fff1a73, 0x9579db6c80c2ed23, 0xcb235ffa10b27357, 0x920e23738633b411,
	0x5e9afcb27c78f2de, 0x700d086c0ef5421c, 0x5bd8389753a4607b, 0x53a4191f76e52bb5,
	0x529b597932e5bc90, 0xac5bd88bbd938b8d, 0x780aaecae9497dc2, 0x23514c4da83cc993,
	0xbf04d3cf25dfe6ab, 0xe2573da7a164dfb6, 0x1d72814d3522d2d7, 0xd13801d9444aef74,
	0x4416b42fb46ef0ae, 0xaf3f1d7628c21d00, 0x04068920ae94c854, 0x916dd3de93c16538,
	0xedc9a9df63ccb76c, 0x92d3d12e784a3485, 0xd87c3c009d7dfb17, 0x2884a334e77e42e8,
	0x700d99bf3ef0b0d0, 0x01211f7ccd565879, 0x987de5934aef0f51, 0xb5bd0003abf288ec,
	0x51a152be3c94a8b1, 0x984f537a4512e676, 0x1c70724163c285eb, 0xdb95c268d771048f,
	0x758bb98ea4a7423d, 0x1c62ef4ee3327c75, 0x5b2d166354c8da1c, 0x930bb59d7cb4bd75,
	0xa8f82c8935a2aa0d, 0x853897756b67b1dc, 0xf5a586078cf5b494, 0x4a3a9e400cd134d0,
	0x0563b9f36f40c707, 0x5cfd5e034330b31c, 0xbb3c2d0cc7c29a0a, 0x9be7b48667b27df9,
	0xd44542f0d029f4fd, 0x1d5806fa448f86ed, 0xd84cbb7a45653730, 0x193c8a3e00acc667,
	0x67163ef6bf858a5a, 0x1201a6f564acba1d, 0x0f29128b4c20c970, 0x5311b2a8d143218b,
	0x2ba529917864b307, 0x3e3b0fe7b2a7d264, 0xf6d28dcab942d0ad, 0xfe4ccb359b6a71f2,
	0xe803d512d8199e4d, 0xab548932ca7ededb, 0x06466843b27c1936, 0x8f8bfd6bf145cfec,
	0x492126f3266897ee, 0x894ab1f4fd66d4b9, 0x37cace17b03cec65, 0x4f286258f3170abf,
	0x4356c09fe70d97ea, 0x4186809ca98b0322, 0xacdc7643ce528e12, 0x28554e0c49778606,
	0x66c92fe1a650e486, 0x05474dabebe0dc0a, 0xa220930aa020185a, 0x3c00d834d15eb333,
	0x72deb4eb8a05bfc4, 0x51986fab6b6548cf, 0x5631fc88bc24bcba, 0xf5b5a89d55ce2628,
	0x5306ddca00df55fb, 0x499ac7ffd1c72b54, 0x1b191f278c6373be, 0xf68dda8b8f4ca9cf,
	0xaa6411576646ab04, 0x19df28b3afa0b4f8, 0xfc3d816a86de4062, 0x2ecd7b4b36200fb1,
	0x8741d4656418cc7e, 0xe44dd0059ecb3d2a, 0xb3cacbdba6bbe4e3, 0x6f1ce74c65ce6945,
	0xaadfe53d7804e691, 0xab4fb6a8bc294656, 0xa526b2f06f79077f, 0x361688c9a50448ee,
	0xbc0a94c60944a08c, 0x1f356cb9dd2a5b02, 0xf811acee51fc4f45, 0xbe0e75ebe7fae031,
	0xfe13158f547e9a93, 0xd925bd7cf6eb7675, 0xd84c7b52bd4145b7, 0x845520084f8a1ff9,
	0xa1632f426d735ab3, 0x71f8883e9e29de0f, 0x9b45252d8a0356f0, 0x7cbbcfd762630f4d,
	0xf7cb99b41d811ed9, 0xe7993b9256c79de3, 0x90a8bd4da77abcfa, 0xe77961ca81c892d3,
	0xf48e8246a68f3319, 0x0496f675076708a8, 0x09e0ac4adca8ec8d, 0xb20ce067d6cba49c,
	0x70f62ed8a4526b20, 0xd20facc6f35caf36, 0xeddf58122ba4bd2b, 0x233152ceb214a80c,
	0x8e80f14b9ec80815, 0x7963811385ef648a, 0x5e367c24085a58b2, 0x09967d08bbb7665b,
	0x64e1c8a1c1e0345f, 0xfc27c13d536ff321, 0x1f3c7650f86c64f8, 0xf423822f26ff0853,
	0x6c8586d6f3a27e74, 0xc0728233ba212f8b, 0x3031a6363a19af2b, 0x31b53d81ac90170f,
	0x6f6e470acbb87a64, 0xb5aca3bef56aae8d, 0xeaeb61bd194360ae, 0xa4873dd4cb1cd957,
	0x50968f7d9d1859ca, 0x96d9bbb736318923, 0x61d4803a671e26c6, 0xb8fff502bd127016,
	0xdd8f90a38f729b06, 0x267e227a9749930d, 0x6ff70f5803b7d697, 0xd7e1ce3bb2ba1721,
	0x1e690abe604adc92, 0x7053857151c3906b, 0x1f85a47a939c7c13, 0x94561427145222b9,
	0x4216d11770fe7d6e, 0x078de0ce4b58d993, 0xbfdb69b3152a03dc, 0x9933502cd192308d,
	0x1fca961c9e6bb80d, 0x47962939ad0df472, 0x2e8e584e49936873, 0xc356ea2cc4d4d9ca,
}
